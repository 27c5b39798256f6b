package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/SH11235/rshogi-sub004/internal/engine"
	"github.com/SH11235/rshogi-sub004/internal/usi"
)

// defaultNetFile is the NNUE weights file name auto-loaded from the
// standard search paths below, if present.
const defaultNetFile = "rshogi.nnue"

// defaultBookFile is the opening book file name auto-loaded the same way.
const defaultBookFile = "book.bin"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")

func main() {
	flag.Parse()

	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	// Create engine with 64MB hash table. Multi-threaded search enabled
	// (Lazy SMP).
	eng := engine.NewEngine(64)

	if err := autoLoadNNUE(eng); err != nil {
		log.Printf("Warning: NNUE not loaded: %v (using material evaluation)", err)
	}

	if err := autoLoadBook(eng); err != nil {
		log.Printf("Warning: opening book not loaded: %v", err)
	}

	protocol := usi.New(eng)
	protocol.Run()
}

// autoLoadNNUE attempts to load NNUE weights from standard locations.
func autoLoadNNUE(eng *engine.Engine) error {
	for _, dir := range searchDirs() {
		path := filepath.Join(dir, defaultNetFile)
		if fileExists(path) {
			if err := eng.LoadNNUE(path); err != nil {
				log.Printf("Failed to load NNUE from %s: %v", path, err)
				continue
			}
			eng.SetUseNNUE(true)
			log.Printf("NNUE loaded from %s", path)
			return nil
		}
	}

	return os.ErrNotExist
}

// autoLoadBook attempts to load an opening book from standard locations.
func autoLoadBook(eng *engine.Engine) error {
	for _, dir := range searchDirs() {
		path := filepath.Join(dir, defaultBookFile)
		if fileExists(path) {
			if err := eng.LoadBook(path); err != nil {
				log.Printf("Failed to load book from %s: %v", path, err)
				continue
			}
			log.Printf("Book loaded from %s", path)
			return nil
		}
	}

	return os.ErrNotExist
}

func searchDirs() []string {
	return []string{
		getAppSupportDir(),
		filepath.Join(getHomeDir(), ".rshogi"),
		"./data",
		".",
	}
}

// getAppSupportDir returns the application support directory for rshogi.
func getAppSupportDir() string {
	home := getHomeDir()
	return filepath.Join(home, "Library", "Application Support", "rshogi")
}

// getHomeDir returns the user's home directory.
func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
