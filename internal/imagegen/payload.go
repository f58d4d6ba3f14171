package imagegen

import "aiprofile/internal/domain"

// Wire types for the backend's txt2img endpoint. Field defaults mirror what
// the backend expects; only prompt, negative prompt, batch size, and the
// always-on script arguments vary per call.

type scriptArgs struct {
	Args []any `json:"args"`
}

type alwaysOnScripts struct {
	ControlNet scriptArgs `json:"ControlNet"`
	Reactor    scriptArgs `json:"reactor"`
}

type t2iPayload struct {
	Prompt          string          `json:"prompt"`
	NegativePrompt  string          `json:"negative_prompt"`
	AlwaysOnScripts alwaysOnScripts `json:"alwayson_scripts"`
	SamplerName     string          `json:"sampler_name"`
	BatchSize       int             `json:"batch_size"`
	CFGScale        int             `json:"cfg_scale"`
	Seed            int             `json:"seed"`
	Steps           int             `json:"steps"`
	Height          int             `json:"height"`
	Width           int             `json:"width"`
	NIter           int             `json:"n_iter"`
	RestoreFaces    bool            `json:"restore_faces"`
	Tiling          bool            `json:"tiling"`
}

func newT2IPayload(prompt, negative string, batchSize int) t2iPayload {
	return t2iPayload{
		Prompt:         prompt,
		NegativePrompt: negative,
		SamplerName:    "DPM++ 3M SDE Karras",
		BatchSize:      batchSize,
		CFGScale:       7,
		Seed:           -1,
		Steps:          30,
		Height:         720,
		Width:          512,
		NIter:          1,
	}
}

type controlNetUnit struct {
	Image        string  `json:"image"`
	ControlMode  string  `json:"control_mode"`
	Enabled      bool    `json:"enabled"`
	GuidanceEnd  float64 `json:"guidance_end"`
	Model        string  `json:"model"`
	Module       string  `json:"module"`
	ProcessorRes int     `json:"processor_res"`
	ResizeMode   string  `json:"resize_mode"`
	Weight       float64 `json:"weight"`
}

// poseUnit steers composition with an openpose map of the gender preset.
func poseUnit(poseImage string) controlNetUnit {
	return controlNetUnit{
		Image:        poseImage,
		ControlMode:  "Balanced",
		Enabled:      true,
		GuidanceEnd:  1,
		Model:        "control_v11p_sd15_openpose [cab727d4]",
		Module:       "openpose",
		ProcessorRes: 512,
		ResizeMode:   "Crop and Resize",
		Weight:       0.4,
	}
}

// ipAdapterUnit steers identity with one conditioning image.
func ipAdapterUnit(conditioningImage string) controlNetUnit {
	return controlNetUnit{
		Image:       conditioningImage,
		ControlMode: "Balanced",
		Enabled:     true,
		GuidanceEnd: 1,
		Model:       "ip-adapter-plus-face_sd15 [7f7a633a]",
		Module:      "ip-adapter_clip_sd15",
		ResizeMode:  "Crop and Resize",
		Weight:      0.33,
	}
}

func unitsToArgs(units []controlNetUnit) []any {
	args := make([]any, len(units))
	for i, u := range units {
		args[i] = u
	}
	return args
}

// reactorArgs is the positional argument list of the face-swap script. The
// backend takes these by position, so order and length are part of the wire
// contract: source image (unused, model selected by name), enable, face
// numbers, model path, restorer settings, swap toggles, logging, gender
// detection, hash checks, device, mask correction, source selector (1 =
// saved face model), model filename, folder, skip, random selection,
// upscale, detection threshold, max faces.
func reactorArgs(model domain.ModelHandle) []any {
	return []any{
		nil,                  // source image
		true,                 // enable
		"0",                  // face numbers
		"0",                  // target face numbers
		"inswapper_128.onnx", // swap model path
		"CodeFormer",         // face restorer
		1,                    // restore visibility
		true,                 // restore then upscale
		"Lanczos",            // upscaler
		2,                    // upscale factor
		1,                    // upscaler visibility
		true,                 // swap in source
		true,                 // swap in generated
		1,                    // console log level
		0,                    // gender detection (source)
		0,                    // gender detection (target)
		false,                // save originals
		0.5,                  // codeformer weight
		false,                // source hash check
		false,                // target hash check
		"CUDA",               // device
		true,                 // face mask correction
		1,                    // select source: saved face model
		string(model) + ".safetensors",
		"",    // source folder
		nil,   // skip
		true,  // random image selection
		true,  // force upscale
		0.6,   // detection threshold
		1,     // max faces to detect
	}
}
