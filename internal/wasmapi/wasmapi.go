//go:build js && wasm

// Package wasmapi exposes the engine to a WebAssembly host (spec §6):
// init() -> EngineHandle, setPosition(sfen, moves), go(limits, onInfo)
// -> Promise<bestMove>, stop(). It is a boundary adapter only — no
// search logic lives here, just marshaling between js.Value and the
// engine package's Go API.
package wasmapi

import (
	"strings"
	"sync"
	"syscall/js"
	"time"

	"github.com/SH11235/rshogi-sub004/internal/engine"
	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

// handle is the single engine instance a WASM module exposes; the host
// gets a reference to it via init(), not a Go-side multi-instance API.
type handle struct {
	mu       sync.Mutex
	eng      *engine.Engine
	position *shogi.Position
	hashes   []uint64
	stopped  bool
}

var current *handle

// Register installs the init/setPosition/go/stop globals on the given
// JS object (typically js.Global()). Call once from a wasm_exec bootstrap.
func Register(target js.Value) {
	target.Set("init", js.FuncOf(jsInit))
	target.Set("setPosition", js.FuncOf(jsSetPosition))
	target.Set("go", js.FuncOf(jsGo))
	target.Set("stop", js.FuncOf(jsStop))
}

func jsInit(this js.Value, args []js.Value) any {
	h := &handle{
		eng:      engine.NewEngine(32),
		position: shogi.NewPosition(),
	}
	h.hashes = []uint64{h.position.Hash}
	current = h
	return js.ValueOf(map[string]any{"ok": true})
}

// jsSetPosition(sfen, moves): sfen == "startpos" or a literal SFEN
// string; moves is a JS array of USI move strings applied in order.
func jsSetPosition(this js.Value, args []js.Value) any {
	h := current
	if h == nil || len(args) < 1 {
		return js.ValueOf(map[string]any{"ok": false, "error": "not initialized"})
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	sfen := args[0].String()
	var pos *shogi.Position
	if sfen == "" || sfen == "startpos" {
		pos = shogi.NewPosition()
	} else {
		p, err := shogi.FromSFEN(sfen)
		if err != nil {
			return js.ValueOf(map[string]any{"ok": false, "error": err.Error()})
		}
		pos = p
	}

	hashes := []uint64{pos.Hash}
	if len(args) >= 2 && args[1].Type() == js.TypeObject {
		length := args[1].Length()
		for i := 0; i < length; i++ {
			moveStr := args[1].Index(i).String()
			move, err := shogi.ParseMove(moveStr)
			if err != nil {
				return js.ValueOf(map[string]any{"ok": false, "error": "invalid move: " + moveStr})
			}
			pos.MakeMove(move)
			pos.UpdateCheckers()
			hashes = append(hashes, pos.Hash)
		}
	}

	h.position = pos
	h.hashes = hashes
	return js.ValueOf(map[string]any{"ok": true})
}

// jsGo(limits, onInfo) -> Promise<bestMove>. limits is a JS object with
// optional depth/movetime/wtime/btime/winc/binc/byoyomi/infinite fields;
// onInfo, if a function, is called once per completed iteration with a
// {depth, score, nodes, pv} object.
func jsGo(this js.Value, args []js.Value) any {
	h := current
	if h == nil {
		return jsRejectedPromise("not initialized")
	}

	var limitsArg js.Value
	var onInfo js.Value
	if len(args) >= 1 {
		limitsArg = args[0]
	}
	if len(args) >= 2 && args[1].Type() == js.TypeFunction {
		onInfo = args[1]
	}

	handler := js.FuncOf(func(resolveThis js.Value, resolveArgs []js.Value) any {
		resolve := resolveArgs[0]

		go func() {
			h.mu.Lock()
			pos := h.position.Copy()
			hashes := append([]uint64(nil), h.hashes...)
			h.stopped = false
			h.mu.Unlock()

			h.eng.SetPositionHistory(hashes)
			if onInfo.Truthy() {
				h.eng.OnInfo = func(info engine.SearchInfo) {
					onInfo.Invoke(infoToJS(info))
				}
			}

			limits := parseLimits(limitsArg)
			best := h.eng.SearchWithUCILimits(pos, limits, pos.Ply)

			resolve.Invoke(js.ValueOf(best.String()))
		}()

		return nil
	})

	promiseCtor := js.Global().Get("Promise")
	return promiseCtor.New(handler)
}

func jsStop(this js.Value, args []js.Value) any {
	h := current
	if h == nil {
		return js.ValueOf(map[string]any{"ok": false})
	}
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.eng.Stop()
	return js.ValueOf(map[string]any{"ok": true})
}

func jsRejectedPromise(reason string) js.Value {
	handler := js.FuncOf(func(this js.Value, args []js.Value) any {
		reject := args[1]
		reject.Invoke(js.ValueOf(reason))
		return nil
	})
	return js.Global().Get("Promise").New(handler)
}

func parseLimits(v js.Value) engine.UCILimits {
	var limits engine.UCILimits
	if v.IsUndefined() || v.IsNull() {
		return limits
	}

	getMS := func(key string) time.Duration {
		field := v.Get(key)
		if field.IsUndefined() || field.IsNull() {
			return 0
		}
		return time.Duration(field.Int()) * time.Millisecond
	}

	limits.Depth = intField(v, "depth")
	limits.MoveTime = getMS("movetime")
	limits.Time = [2]time.Duration{getMS("btime"), getMS("wtime")}
	limits.Inc = [2]time.Duration{getMS("binc"), getMS("winc")}
	limits.Byoyomi = getMS("byoyomi")
	limits.MovesToGo = intField(v, "movestogo")

	if infinite := v.Get("infinite"); infinite.Truthy() {
		limits.Infinite = true
	}

	return limits
}

func intField(v js.Value, key string) int {
	field := v.Get(key)
	if field.IsUndefined() || field.IsNull() {
		return 0
	}
	return field.Int()
}

func infoToJS(info engine.SearchInfo) js.Value {
	pvStrs := make([]string, len(info.PV))
	for i, m := range info.PV {
		pvStrs[i] = m.String()
	}
	return js.ValueOf(map[string]any{
		"depth": info.Depth,
		"score": info.Score,
		"nodes": float64(info.Nodes),
		"time":  info.Time.Milliseconds(),
		"pv":    strings.Join(pvStrs, " "),
	})
}
