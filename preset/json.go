package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cwbudde/algo-poly/dsp"
	"github.com/cwbudde/algo-poly/envelope"
	"github.com/cwbudde/algo-poly/irsynth"
	"github.com/cwbudde/algo-poly/node"
	"github.com/cwbudde/algo-poly/osc"
	"github.com/cwbudde/algo-poly/patch"
	"github.com/cwbudde/algo-poly/synth"
)

// File is the JSON schema for synth presets.
type File struct {
	SampleRate *int           `json:"sample_rate"`
	BlockSize  *int           `json:"block_size"`
	QueueSize  *int           `json:"queue_size"`
	MasterGain *float32       `json:"master_gain"`
	Groups     []GroupSetting `json:"groups"`
}

// GroupSetting describes one channel's voice pool.
type GroupSetting struct {
	Channel int           `json:"channel"`
	Voices  int           `json:"voices"`
	Gain    *float32      `json:"gain"`
	Voice   *VoiceSetting `json:"voice"`
}

// VoiceSetting is the template every voice of a group is cloned from.
type VoiceSetting struct {
	Gain         *float32            `json:"gain"`
	Envelope     []BreakPointSetting `json:"envelope"`
	Nodes        []NodeSetting       `json:"nodes"`
	Connections  []ConnectionSetting `json:"connections"`
	Inlets       []InletSetting      `json:"inlets"`
	Output       string              `json:"output"`
	OutputOutlet int                 `json:"output_outlet"`
}

type BreakPointSetting struct {
	Time      float32 `json:"time"`
	Value     float32 `json:"value"`
	Ramp      float32 `json:"ramp"`
	LoopStart bool    `json:"loop_start"`
	LoopEnd   bool    `json:"loop_end"`
}

// NodeSetting declares one node. Only the fields its type uses are read.
type NodeSetting struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Waveform   string             `json:"waveform"`
	Filter     string             `json:"filter"`
	IRWavPath  string             `json:"ir_wav_path"`
	IR         []float32          `json:"ir"`
	Room       *RoomSetting       `json:"ir_room"`
	PartSize   int                `json:"part_size"`
	MaxSeconds float32            `json:"max_seconds"`
	Params     map[string]float32 `json:"params"`
}

// RoomSetting overrides fields of irsynth.DefaultRoom for a generated
// convolver response.
type RoomSetting struct {
	Duration    *float64 `json:"duration"`
	Seed        *int64   `json:"seed"`
	DirectLevel *float64 `json:"direct_level"`
	EarlyCount  *int     `json:"early_count"`
	Modes       *int     `json:"modes"`
	Brightness  *float64 `json:"brightness"`
	LateLevel   *float64 `json:"late_level"`
	LowDecay    *float64 `json:"low_decay"`
	HighDecay   *float64 `json:"high_decay"`
	Peak        *float64 `json:"peak"`
}

// Room resolves the setting at sampleRate.
func (r *RoomSetting) Room(sampleRate int) irsynth.Room {
	room := irsynth.DefaultRoom(sampleRate)
	if r == nil {
		return room
	}
	setIf(&room.Duration, r.Duration)
	setIf(&room.Seed, r.Seed)
	setIf(&room.DirectLevel, r.DirectLevel)
	setIf(&room.EarlyCount, r.EarlyCount)
	setIf(&room.Modes, r.Modes)
	setIf(&room.Brightness, r.Brightness)
	setIf(&room.LateLevel, r.LateLevel)
	setIf(&room.LowDecay, r.LowDecay)
	setIf(&room.HighDecay, r.HighDecay)
	setIf(&room.NormalizePeak, r.Peak)
	return room
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

type ConnectionSetting struct {
	From   string `json:"from"`
	Outlet int    `json:"outlet"`
	To     string `json:"to"`
	Inlet  int    `json:"inlet"`
}

// InletSetting holds a literal on an unconnected scalar inlet.
type InletSetting struct {
	Node  string  `json:"node"`
	Inlet int     `json:"inlet"`
	Value float32 `json:"value"`
}

// LoadJSON loads a preset JSON file and applies it on top of the default
// config. Relative IR paths resolve against the preset's directory.
func LoadJSON(path string) (*synth.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseJSON(b, filepath.Dir(path))
}

// ParseJSON is LoadJSON for preset bytes already in memory. Relative IR
// paths resolve against baseDir.
func ParseJSON(b []byte, baseDir string) (*synth.Config, error) {
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	resolvePaths(&f, baseDir)

	cfg := synth.NewDefaultConfig()
	if err := ApplyFile(cfg, &f); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolvePaths(f *File, base string) {
	for _, g := range f.Groups {
		if g.Voice == nil {
			continue
		}
		for i := range g.Voice.Nodes {
			n := &g.Voice.Nodes[i]
			n.IRWavPath = strings.TrimSpace(n.IRWavPath)
			if n.IRWavPath != "" && !filepath.IsAbs(n.IRWavPath) {
				n.IRWavPath = filepath.Clean(filepath.Join(base, n.IRWavPath))
			}
		}
	}
}

// ApplyFile applies a parsed preset file onto an existing config. When the
// file changes the sample rate but declares no groups, the existing groups
// get the default template at the new rate.
func ApplyFile(dst *synth.Config, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination config")
	}
	if f == nil {
		return nil
	}

	if f.SampleRate != nil {
		if *f.SampleRate <= 0 {
			return fmt.Errorf("sample_rate must be > 0")
		}
		if *f.SampleRate != dst.SampleRate && len(f.Groups) == 0 {
			for i := range dst.Groups {
				dst.Groups[i].Template = synth.DefaultTemplate(*f.SampleRate)
			}
		}
		dst.SampleRate = *f.SampleRate
	}
	if f.BlockSize != nil {
		if *f.BlockSize <= 0 {
			return fmt.Errorf("block_size must be > 0")
		}
		dst.BlockSize = *f.BlockSize
	}
	if f.QueueSize != nil {
		if *f.QueueSize <= 0 {
			return fmt.Errorf("queue_size must be > 0")
		}
		dst.QueueSize = *f.QueueSize
	}
	if f.MasterGain != nil {
		if *f.MasterGain <= 0 {
			return fmt.Errorf("master_gain must be > 0")
		}
		dst.MasterGain = *f.MasterGain
	}

	if len(f.Groups) == 0 {
		return nil
	}
	groups := make([]synth.Group, 0, len(f.Groups))
	for i, gs := range f.Groups {
		if gs.Voices <= 0 {
			return fmt.Errorf("groups[%d].voices must be > 0", i)
		}
		g := synth.Group{Channel: gs.Channel, Voices: gs.Voices, Gain: 1}
		if gs.Gain != nil {
			if *gs.Gain <= 0 {
				return fmt.Errorf("groups[%d].gain must be > 0", i)
			}
			g.Gain = *gs.Gain
		}
		if gs.Voice == nil {
			g.Template = synth.DefaultTemplate(dst.SampleRate)
		} else {
			tpl, err := BuildTemplate(dst.SampleRate, gs.Voice)
			if err != nil {
				return fmt.Errorf("groups[%d].voice: %w", i, err)
			}
			g.Template = tpl
		}
		groups = append(groups, g)
	}
	dst.Groups = groups
	return dst.Validate()
}

// BuildTemplate turns a voice description into a compiled template.
func BuildTemplate(sampleRate int, v *VoiceSetting) (synth.Template, error) {
	if v == nil {
		return synth.DefaultTemplate(sampleRate), nil
	}
	tpl := synth.Template{Gain: 1}
	if v.Gain != nil {
		if *v.Gain <= 0 {
			return tpl, fmt.Errorf("gain must be > 0")
		}
		tpl.Gain = *v.Gain
	}

	if len(v.Envelope) == 0 {
		tpl.Points = synth.DefaultPoints()
	} else {
		tpl.Points = make([]envelope.BreakPoint, len(v.Envelope))
		for i, bp := range v.Envelope {
			tpl.Points[i] = envelope.BreakPoint(bp)
		}
	}
	if _, err := envelope.NewFromPoints(sampleRate, tpl.Points...); err != nil {
		return tpl, fmt.Errorf("envelope: %w", err)
	}

	g := patch.New()
	for i, ns := range v.Nodes {
		if ns.ID == "" {
			return tpl, fmt.Errorf("nodes[%d]: missing id", i)
		}
		n, err := buildNode(sampleRate, ns)
		if err != nil {
			return tpl, fmt.Errorf("node %q: %w", ns.ID, err)
		}
		if _, err := g.AddNamed(ns.ID, n); err != nil {
			return tpl, err
		}
	}

	handle := func(id string) (patch.Handle, error) {
		h, ok := g.Lookup(id)
		if !ok {
			return -1, fmt.Errorf("%w: %q", patch.ErrUnknownNode, id)
		}
		return h, nil
	}
	for i, c := range v.Connections {
		from, err := handle(c.From)
		if err != nil {
			return tpl, fmt.Errorf("connections[%d]: %w", i, err)
		}
		to, err := handle(c.To)
		if err != nil {
			return tpl, fmt.Errorf("connections[%d]: %w", i, err)
		}
		if err := g.Connect(from, c.Outlet, to, c.Inlet); err != nil {
			return tpl, fmt.Errorf("connections[%d]: %w", i, err)
		}
	}
	for i, in := range v.Inlets {
		h, err := handle(in.Node)
		if err != nil {
			return tpl, fmt.Errorf("inlets[%d]: %w", i, err)
		}
		if err := g.SetInlet(h, in.Inlet, in.Value); err != nil {
			return tpl, fmt.Errorf("inlets[%d]: %w", i, err)
		}
	}

	if v.Output == "" {
		return tpl, fmt.Errorf("output: %w", patch.ErrNoOutput)
	}
	out, err := handle(v.Output)
	if err != nil {
		return tpl, fmt.Errorf("output: %w", err)
	}
	if err := g.SetOutput(out, v.OutputOutlet); err != nil {
		return tpl, fmt.Errorf("output: %w", err)
	}
	if err := g.Compile(); err != nil {
		return tpl, err
	}
	tpl.Graph = g
	return tpl, nil
}

func buildNode(sampleRate int, ns NodeSetting) (node.Node, error) {
	var n node.Node
	switch strings.ToLower(ns.Type) {
	case "value":
		n = node.NewValue(0)
	case "lowpass":
		n = node.NewLowPass(sampleRate, 1000)
	case "highpass":
		n = node.NewHighPass(sampleRate, 100)
	case "bandpass":
		n = node.NewBandPass(sampleRate, 1000, 1)
	case "biquad":
		typ := dsp.BiquadLowpass
		if ns.Filter != "" {
			t, ok := dsp.ParseBiquadType(strings.ToLower(ns.Filter))
			if !ok {
				return nil, fmt.Errorf("unknown biquad filter %q", ns.Filter)
			}
			typ = t
		}
		n = node.NewBiquad(sampleRate, typ, 1000, 0.707, 0)
	case "samplehold":
		n = node.NewSampleHold()
	case "multiply":
		n = node.NewMultiply(1)
	case "add":
		n = node.NewAdd(0)
	case "clip":
		n = node.NewClip(-1, 1)
	case "gain":
		n = node.NewGain(1)
	case "oscillator":
		gen, ok := osc.ByName(strings.ToLower(ns.Waveform), sampleRate)
		if !ok {
			return nil, fmt.Errorf("unknown waveform %q", ns.Waveform)
		}
		n = node.NewOscillator(gen, 440)
	case "delay":
		if ns.MaxSeconds < 0 {
			return nil, fmt.Errorf("max_seconds must be >= 0")
		}
		n = node.NewDelay(sampleRate, ns.MaxSeconds, 0.25, 0, 0.5)
	case "convolver":
		if ns.PartSize < 0 {
			return nil, fmt.Errorf("part_size must be >= 0")
		}
		c := node.NewConvolver(sampleRate, ns.PartSize)
		switch {
		case ns.IRWavPath != "":
			if err := c.SetIRFromWAV(ns.IRWavPath); err != nil {
				return nil, err
			}
		case len(ns.IR) > 0:
			if err := c.SetIR(ns.IR); err != nil {
				return nil, err
			}
		case ns.Room != nil:
			ir, err := irsynth.Generate(ns.Room.Room(sampleRate))
			if err != nil {
				return nil, fmt.Errorf("ir_room: %w", err)
			}
			if err := c.SetIR(ir); err != nil {
				return nil, err
			}
		}
		n = c
	default:
		return nil, fmt.Errorf("unknown node type %q", ns.Type)
	}

	keys := make([]string, 0, len(ns.Params))
	for k := range ns.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := n.SetParameter(k, ns.Params[k]); err != nil {
			return nil, err
		}
	}
	return n, nil
}
