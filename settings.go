package lumen

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidSettings = errors.New("invalid settings")

// ToneMapping selects the HDR to display-range operator. Numeric values match
// the uniform layout consumed by the post shader.
type ToneMapping uint32

const (
	ToneMappingNone       ToneMapping = 0
	ToneMappingACES       ToneMapping = 1
	ToneMappingReinhard   ToneMapping = 2
	ToneMappingUncharted2 ToneMapping = 3
)

func (t ToneMapping) String() string {
	switch t {
	case ToneMappingNone:
		return "None"
	case ToneMappingACES:
		return "ACES"
	case ToneMappingReinhard:
		return "Reinhard"
	case ToneMappingUncharted2:
		return "Uncharted2"
	}
	return fmt.Sprintf("ToneMapping(%d)", uint32(t))
}

func ParseToneMapping(s string) (ToneMapping, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return ToneMappingNone, nil
	case "aces":
		return ToneMappingACES, nil
	case "reinhard":
		return ToneMappingReinhard, nil
	case "uncharted2", "uncharted":
		return ToneMappingUncharted2, nil
	}
	return ToneMappingNone, fmt.Errorf("%w: unknown tone mapping %q", ErrInvalidSettings, s)
}

func (t ToneMapping) MarshalYAML() (any, error) {
	return t.String(), nil
}

func (t *ToneMapping) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseToneMapping(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// VolumetricMode picks how the participating medium is integrated.
type VolumetricMode string

const (
	// VolumetricScreenSpace marches every pixel ray directly against the density field.
	VolumetricScreenSpace VolumetricMode = "screen"
	// VolumetricVolumeTexture fills a world-space voxel grid and integrates pixel rays through it.
	VolumetricVolumeTexture VolumetricMode = "volume"
)

// QualityTier selects a statically specialized pipeline variant.
type QualityTier int

const (
	QualityLow QualityTier = iota
	QualityMedium
	QualityHigh
	QualityUltra
)

var qualityNames = []string{"low", "medium", "high", "ultra"}

func (q QualityTier) String() string {
	if q < QualityLow || q > QualityUltra {
		return fmt.Sprintf("QualityTier(%d)", int(q))
	}
	return qualityNames[q]
}

func ParseQualityTier(s string) (QualityTier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range qualityNames {
		if n == s {
			return QualityTier(i), nil
		}
	}
	return QualityMedium, fmt.Errorf("%w: unknown quality tier %q", ErrInvalidSettings, s)
}

func (q QualityTier) MarshalYAML() (any, error) {
	return q.String(), nil
}

func (q *QualityTier) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseQualityTier(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// PostSettings covers the whole post-process stack. Exposure is expressed in
// stops: the stack multiplies by 2^Exposure.
type PostSettings struct {
	Exposure            float32     `yaml:"exposure"`
	Gamma               float32     `yaml:"gamma"`
	Contrast            float32     `yaml:"contrast"`
	Saturation          float32     `yaml:"saturation"`
	Brightness          float32     `yaml:"brightness"`
	BloomIntensity      float32     `yaml:"bloom_intensity"`
	BloomThreshold      float32     `yaml:"bloom_threshold"`
	ChromaticAberration float32     `yaml:"chromatic_aberration"`
	VignetteStrength    float32     `yaml:"vignette_strength"`
	VignetteRadius      float32     `yaml:"vignette_radius"`
	ToneMapping         ToneMapping `yaml:"tone_mapping"`

	TAA      bool    `yaml:"taa"`
	TAABlend float32 `yaml:"taa_blend"`

	MotionBlur        bool    `yaml:"motion_blur"`
	MotionBlurSamples int     `yaml:"motion_blur_samples"`
	MotionBlurScale   float32 `yaml:"motion_blur_scale"`

	DepthOfField  bool    `yaml:"depth_of_field"`
	FocusDistance float32 `yaml:"focus_distance"` // world units
	FStop         float32 `yaml:"f_stop"`
	FocalLength   float32 `yaml:"focal_length"`  // mm
	SensorHeight  float32 `yaml:"sensor_height"` // mm
	MaxCoC        float32 `yaml:"max_coc"`       // pixels

	Bloom bool `yaml:"bloom"`
}

func DefaultPostSettings() PostSettings {
	return PostSettings{
		Exposure:            0,
		Gamma:               2.2,
		Contrast:            1.0,
		Saturation:          1.0,
		Brightness:          1.0,
		BloomIntensity:      0.5,
		BloomThreshold:      1.0,
		ChromaticAberration: 0,
		VignetteStrength:    0,
		VignetteRadius:      0.5,
		ToneMapping:         ToneMappingACES,

		TAA:      true,
		TAABlend: 0.1,

		MotionBlur:        false,
		MotionBlurSamples: 8,
		MotionBlurScale:   1.0,

		DepthOfField:  false,
		FocusDistance: 10,
		FStop:         2.8,
		FocalLength:   50,
		SensorHeight:  24,
		MaxCoC:        8,

		Bloom: true,
	}
}

// HDRPostSettings is tuned for bright HDR scenes.
func HDRPostSettings() PostSettings {
	s := DefaultPostSettings()
	s.ToneMapping = ToneMappingACES
	s.Exposure = 0.263
	s.BloomIntensity = 0.7
	s.BloomThreshold = 1.2
	s.Saturation = 1.1
	s.Contrast = 1.1
	return s
}

// CinematicPostSettings gives a filmic look with a soft vignette.
func CinematicPostSettings() PostSettings {
	s := DefaultPostSettings()
	s.ToneMapping = ToneMappingUncharted2
	s.Exposure = 0.1375
	s.Gamma = 2.4
	s.BloomIntensity = 0.6
	s.BloomThreshold = 0.9
	s.Saturation = 0.9
	s.Contrast = 1.2
	s.Brightness = 0.95
	s.VignetteStrength = 0.3
	s.VignetteRadius = 0.8
	return s
}

// RetroPostSettings is a stylized preset with chromatic aberration.
func RetroPostSettings() PostSettings {
	s := DefaultPostSettings()
	s.ToneMapping = ToneMappingReinhard
	s.Exposure = 0.1375
	s.Gamma = 2.0
	s.BloomIntensity = 0.4
	s.BloomThreshold = 0.8
	s.Saturation = 1.2
	s.Contrast = 1.3
	s.Brightness = 1.05
	s.ChromaticAberration = 0.02
	s.VignetteStrength = 0.4
	s.VignetteRadius = 0.7
	return s
}

type LightingSettings struct {
	Ambient  [3]float32 `yaml:"ambient"`
	SkyColor [3]float32 `yaml:"sky_color"`
}

type ShadowSettings struct {
	Enabled         bool    `yaml:"enabled"`
	Cascades        int     `yaml:"cascades"`
	SplitLambda     float32 `yaml:"split_lambda"`
	Resolution      int     `yaml:"resolution"`
	PCFRadius       int     `yaml:"pcf_radius"` // 1 => 3x3 kernel
	DepthBias       float32 `yaml:"depth_bias"`
	NormalBias      float32 `yaml:"normal_bias"`
	PointResolution int     `yaml:"point_resolution"`
	MaxPointShadows int     `yaml:"max_point_shadows"`
}

type CullingSettings struct {
	Workers int `yaml:"workers"` // 0 => NumCPU-1
}

// RayTracingQuality mirrors the reflection quality presets.
type RayTracingQuality string

const (
	RayTracingLow    RayTracingQuality = "low"
	RayTracingMedium RayTracingQuality = "medium"
	RayTracingHigh   RayTracingQuality = "high"
	RayTracingUltra  RayTracingQuality = "ultra"
	RayTracingCustom RayTracingQuality = "custom"
)

type RayTracingSettings struct {
	Enabled            bool              `yaml:"enabled"`
	Preset             RayTracingQuality `yaml:"preset"`
	MaxBounces         uint32            `yaml:"max_bounces"`
	SamplesPerPixel    uint32            `yaml:"samples_per_pixel"`
	MaxRayDistance     float32           `yaml:"max_ray_distance"`
	RoughnessThreshold float32           `yaml:"roughness_threshold"`
	AsyncBuild         bool              `yaml:"async_build"`
	TemporalAlpha      float32           `yaml:"temporal_alpha"`
	BlurRadius         int               `yaml:"blur_radius"`
}

// RayTracingPreset returns reflection settings for a quality preset. Unknown
// presets resolve to medium.
func RayTracingPreset(q RayTracingQuality) RayTracingSettings {
	s := RayTracingSettings{
		Enabled:            true,
		Preset:             q,
		RoughnessThreshold: 0.35,
		TemporalAlpha:      0.2,
	}
	switch q {
	case RayTracingLow:
		s.MaxBounces, s.SamplesPerPixel, s.MaxRayDistance, s.BlurRadius = 2, 1, 100, 1
	case RayTracingHigh:
		s.MaxBounces, s.SamplesPerPixel, s.MaxRayDistance, s.BlurRadius = 8, 4, 1000, 2
	case RayTracingUltra:
		s.MaxBounces, s.SamplesPerPixel, s.MaxRayDistance, s.BlurRadius = 16, 8, 2000, 3
	default:
		if q != RayTracingCustom {
			s.Preset = RayTracingMedium
		}
		s.MaxBounces, s.SamplesPerPixel, s.MaxRayDistance, s.BlurRadius = 4, 2, 500, 2
	}
	return s
}

type VolumetricSettings struct {
	Enabled        bool           `yaml:"enabled"`
	Density        float32        `yaml:"density"`
	Scattering     float32        `yaml:"scattering"`
	Absorption     float32        `yaml:"absorption"`
	MaxDistance    float32        `yaml:"max_distance"`
	Steps          int            `yaml:"steps"`
	Anisotropy     float32        `yaml:"anisotropy"`
	Mode           VolumetricMode `yaml:"mode"`
	Exponential    bool           `yaml:"exponential"`
	UpdateInterval int            `yaml:"update_interval"`
	VolumeSize     [3]int         `yaml:"volume_size"`
	BoundsMin      [3]float32     `yaml:"bounds_min"`
	BoundsMax      [3]float32     `yaml:"bounds_max"`
}

func DefaultVolumetricSettings() VolumetricSettings {
	return VolumetricSettings{
		Enabled:        true,
		Density:        0.1,
		Scattering:     0.6,
		Absorption:     0.1,
		MaxDistance:    50,
		Steps:          48,
		Anisotropy:     0.3,
		Mode:           VolumetricScreenSpace,
		Exponential:    false,
		UpdateInterval: 1,
		VolumeSize:     [3]int{128, 128, 64},
		BoundsMin:      [3]float32{-64, -2, -64},
		BoundsMax:      [3]float32{64, 30, 64},
	}
}

func newVolumetric(density, scattering, absorption, maxDistance float32) VolumetricSettings {
	s := DefaultVolumetricSettings()
	s.Density = clamp01(density)
	s.Scattering = clamp01(scattering)
	s.Absorption = clamp01(absorption)
	s.MaxDistance = float32(math.Max(float64(maxDistance), 0))
	return s
}

func DenseFogVolumetrics() VolumetricSettings  { return newVolumetric(0.8, 0.3, 0.2, 30) }
func LightHazeVolumetrics() VolumetricSettings { return newVolumetric(0.1, 0.7, 0.05, 100) }
func CloudVolumetrics() VolumetricSettings     { return newVolumetric(0.4, 0.9, 0.3, 200) }

type QualitySettings struct {
	Tier              QualityTier `yaml:"tier"`
	Dynamic           bool        `yaml:"dynamic"`
	MinTier           QualityTier `yaml:"min_tier"`
	TargetFrameTimeMs float32     `yaml:"target_frame_time_ms"`
	ToleranceMs       float32     `yaml:"tolerance_ms"`
	CooldownFrames    int         `yaml:"cooldown_frames"`
}

// Settings is the single canonical rendering configuration. It is supplied
// once per frame and never mutated while a frame is in flight.
type Settings struct {
	Post       PostSettings       `yaml:"post"`
	Lighting   LightingSettings   `yaml:"lighting"`
	Shadows    ShadowSettings     `yaml:"shadows"`
	Culling    CullingSettings    `yaml:"culling"`
	RayTracing RayTracingSettings `yaml:"ray_tracing"`
	Volumetric VolumetricSettings `yaml:"volumetric"`
	Quality    QualitySettings    `yaml:"quality"`
}

func DefaultSettings() Settings {
	return Settings{
		Post: DefaultPostSettings(),
		Lighting: LightingSettings{
			Ambient:  [3]float32{0.03, 0.03, 0.035},
			SkyColor: [3]float32{0.45, 0.6, 0.85},
		},
		Shadows: ShadowSettings{
			Enabled:         true,
			Cascades:        4,
			SplitLambda:     0.75,
			Resolution:      1024,
			PCFRadius:       1,
			DepthBias:       0.0015,
			NormalBias:      0.02,
			PointResolution: 256,
			MaxPointShadows: 4,
		},
		RayTracing: RayTracingPreset(RayTracingMedium),
		Volumetric: DefaultVolumetricSettings(),
		Quality: QualitySettings{
			Tier:              QualityMedium,
			Dynamic:           false,
			MinTier:           QualityLow,
			TargetFrameTimeMs: 16.6,
			ToleranceMs:       2.0,
			CooldownFrames:    60,
		},
	}
}

// LoadSettings reads a YAML settings file. Keys absent from the file keep
// their default values; unknown keys are rejected.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %s: %w", path, err)
	}
	s, err := ParseSettings(data)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: %s: %w", path, err)
	}
	return s, nil
}

func ParseSettings(data []byte) (Settings, error) {
	s := DefaultSettings()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate clamps soft ranges in place and rejects values no stage can use.
func (s *Settings) Validate() error {
	p := &s.Post
	if p.Gamma <= 0 {
		return fmt.Errorf("%w: gamma must be > 0, got %v", ErrInvalidSettings, p.Gamma)
	}
	if p.ToneMapping > ToneMappingUncharted2 {
		return fmt.Errorf("%w: tone mapping %d", ErrInvalidSettings, uint32(p.ToneMapping))
	}
	if p.VignetteRadius <= 0 {
		p.VignetteRadius = 0.5
	}
	p.VignetteStrength = maxf(p.VignetteStrength, 0)
	p.ChromaticAberration = maxf(p.ChromaticAberration, 0)
	p.Saturation = maxf(p.Saturation, 0)
	p.BloomIntensity = maxf(p.BloomIntensity, 0)
	p.TAABlend = clamp01(p.TAABlend)
	if p.TAABlend == 0 {
		p.TAABlend = 0.1
	}
	if p.MotionBlurSamples < 1 {
		p.MotionBlurSamples = 1
	}
	if p.FStop <= 0 || p.FocalLength <= 0 || p.SensorHeight <= 0 {
		return fmt.Errorf("%w: depth of field lens parameters must be > 0", ErrInvalidSettings)
	}

	sh := &s.Shadows
	if sh.Cascades < 1 || sh.Cascades > 8 {
		return fmt.Errorf("%w: cascades must be in [1,8], got %d", ErrInvalidSettings, sh.Cascades)
	}
	sh.SplitLambda = clamp01(sh.SplitLambda)
	if sh.Resolution < 16 || sh.PointResolution < 16 {
		return fmt.Errorf("%w: shadow resolution too small", ErrInvalidSettings)
	}
	if sh.PCFRadius < 0 {
		sh.PCFRadius = 0
	}

	rt := &s.RayTracing
	if rt.SamplesPerPixel == 0 {
		rt.SamplesPerPixel = 1
	}
	if rt.MaxBounces == 0 {
		rt.MaxBounces = 1
	}
	rt.RoughnessThreshold = clamp01(rt.RoughnessThreshold)
	rt.TemporalAlpha = clamp01(rt.TemporalAlpha)

	v := &s.Volumetric
	v.Density = clamp01(v.Density)
	v.Scattering = clamp01(v.Scattering)
	v.Absorption = clamp01(v.Absorption)
	v.MaxDistance = maxf(v.MaxDistance, 0)
	if v.Steps < 1 || v.Steps > 256 {
		return fmt.Errorf("%w: volumetric steps must be in [1,256], got %d", ErrInvalidSettings, v.Steps)
	}
	if v.Anisotropy <= -1 || v.Anisotropy >= 1 {
		return fmt.Errorf("%w: anisotropy must be in (-1,1), got %v", ErrInvalidSettings, v.Anisotropy)
	}
	switch v.Mode {
	case VolumetricScreenSpace, VolumetricVolumeTexture:
	case "":
		v.Mode = VolumetricScreenSpace
	default:
		return fmt.Errorf("%w: volumetric mode %q", ErrInvalidSettings, v.Mode)
	}
	if v.UpdateInterval < 1 {
		v.UpdateInterval = 1
	}
	for i := 0; i < 3; i++ {
		if v.VolumeSize[i] < 1 {
			return fmt.Errorf("%w: volume size %v", ErrInvalidSettings, v.VolumeSize)
		}
		if v.BoundsMax[i] <= v.BoundsMin[i] {
			return fmt.Errorf("%w: volume bounds are empty", ErrInvalidSettings)
		}
	}

	q := &s.Quality
	if q.Tier < QualityLow || q.Tier > QualityUltra {
		return fmt.Errorf("%w: quality tier %d", ErrInvalidSettings, q.Tier)
	}
	if q.CooldownFrames < 0 {
		q.CooldownFrames = 0
	}
	return nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
