//go:build js && wasm

package main

import (
	"syscall/js"
	"unsafe"

	"github.com/cwbudde/algo-poly/preset"
	"github.com/cwbudde/algo-poly/synth"
)

var (
	globalSynth  *synth.Synth
	outputBuffer []float32
)

func main() {
	c := make(chan struct{})

	js.Global().Set("wasmInit", js.FuncOf(wasmInit))
	js.Global().Set("wasmLoadPreset", js.FuncOf(wasmLoadPreset))
	js.Global().Set("wasmNoteOn", js.FuncOf(wasmNoteOn))
	js.Global().Set("wasmNoteOff", js.FuncOf(wasmNoteOff))
	js.Global().Set("wasmAllNotesOff", js.FuncOf(wasmAllNotesOff))
	js.Global().Set("wasmSetParameter", js.FuncOf(wasmSetParameter))
	js.Global().Set("wasmProcessBlock", js.FuncOf(wasmProcessBlock))
	js.Global().Set("wasmGetMemoryBuffer", js.FuncOf(wasmGetMemoryBuffer))

	println("WASM synth module loaded")
	<-c
}

// install swaps in a new synth. Notes held on the old one are dropped.
func install(cfg *synth.Config) bool {
	s, err := synth.New(cfg)
	if err != nil {
		println("synth init failed:", err.Error())
		return false
	}
	globalSynth = s
	outputBuffer = make([]float32, s.BlockSize())
	return true
}

// wasmInit(sampleRate) builds the default synth.
func wasmInit(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return false
	}
	cfg := synth.NewDefaultConfig()
	if sr := args[0].Int(); sr != cfg.SampleRate {
		cfg.SampleRate = sr
		for i := range cfg.Groups {
			cfg.Groups[i].Template = synth.DefaultTemplate(sr)
		}
	}
	if !install(cfg) {
		return false
	}
	println("Synth initialized at", cfg.SampleRate, "Hz")
	return true
}

// wasmLoadPreset(json) rebuilds the synth from preset JSON. IR files are
// not reachable from the browser; use inline "ir" or "ir_room".
func wasmLoadPreset(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return false
	}
	cfg, err := preset.ParseJSON([]byte(args[0].String()), ".")
	if err != nil {
		println("preset error:", err.Error())
		return false
	}
	return install(cfg)
}

// wasmNoteOn(channel, note, velocity 0-127)
func wasmNoteOn(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 || globalSynth == nil {
		return nil
	}
	globalSynth.NoteOn(args[0].Int(), args[1].Int(), float32(args[2].Int())/127)
	return nil
}

// wasmNoteOff(channel, note)
func wasmNoteOff(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 || globalSynth == nil {
		return nil
	}
	globalSynth.NoteOff(args[0].Int(), args[1].Int())
	return nil
}

func wasmAllNotesOff(this js.Value, args []js.Value) interface{} {
	if globalSynth == nil {
		return nil
	}
	globalSynth.AllNotesOff(-1)
	return nil
}

// wasmSetParameter(node, param, value)
func wasmSetParameter(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 || globalSynth == nil {
		return false
	}
	if err := globalSynth.SetNodeParameter(args[0].String(), args[1].String(), float32(args[2].Float())); err != nil {
		println("parameter error:", err.Error())
		return false
	}
	return true
}

// wasmProcessBlock(frames) renders up to one block and returns the buffer
// address in linear memory.
func wasmProcessBlock(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalSynth == nil {
		return 0
	}
	numFrames := min(args[0].Int(), globalSynth.BlockSize())
	copy(outputBuffer, globalSynth.RenderBlock(numFrames))

	ptr := &outputBuffer[0]
	return js.ValueOf(uintptr(unsafe.Pointer(ptr)))
}

func wasmGetMemoryBuffer(this js.Value, args []js.Value) interface{} {
	return js.Global().Get("Go").Get("_inst").Get("exports").Get("mem").Get("buffer")
}
