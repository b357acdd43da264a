package shadow

import (
	"context"
	"math"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

// Sampler answers shadow visibility queries during the lighting resolve.
type Sampler interface {
	// Visibility returns the lit fraction in [0,1] of worldPos for the light
	// at index lightIndex of the frame's light list.
	Visibility(lightIndex int, worldPos, normal mgl32.Vec3, viewDepth float32) float32
}

type Stats struct {
	Cascades  int
	PointMaps int
	SpotMaps  int
	Triangles int
}

type spotMap struct {
	vp         mgl32.Mat4
	tanHalfFov float32
	lin        *LinearDepth
	Map        *DepthMap
}

// System owns every shadow map of a frame.
type System struct {
	settings lumen.ShadowSettings
	log      lumen.Logger

	splits   []float32
	cascades []Cascade
	sun      int        // light index of the cascaded light, -1 if none
	lightDir mgl32.Vec3 // towards the cascaded light

	points map[int]*CubeMap
	spots  map[int]*spotMap
	pool   []*CubeMap
}

func NewSystem(settings lumen.ShadowSettings, log lumen.Logger) *System {
	return &System{
		settings: settings,
		log:      lumen.OrNop(log),
		sun:      -1,
		points:   map[int]*CubeMap{},
		spots:    map[int]*spotMap{},
	}
}

func (s *System) Settings() lumen.ShadowSettings { return s.settings }

// SetSettings applies new shadow settings; maps are reallocated lazily.
func (s *System) SetSettings(settings lumen.ShadowSettings) {
	if settings.Resolution != s.settings.Resolution {
		s.cascades = nil
	}
	if settings.PointResolution != s.settings.PointResolution {
		s.pool = nil
	}
	s.settings = settings
}

func (s *System) Splits() []float32 { return s.splits }

func (s *System) Cascades() []Cascade { return s.cascades }

// CascadedLight is the index of the light using cascades, or -1.
func (s *System) CascadedLight() int { return s.sun }

func (s *System) PointMap(i int) *CubeMap {
	return s.points[i]
}

// Build renders the cascades of the first shadow-casting directional light
// and the maps of up to MaxPointShadows point and spot lights. Independent
// maps render concurrently.
func (s *System) Build(ctx context.Context, frame *core.FrameInput) (Stats, error) {
	var st Stats
	s.sun = -1
	clear(s.points)
	clear(s.spots)
	if !s.settings.Enabled {
		return st, nil
	}

	casters := CollectCasters(frame)
	view := frame.View
	res := s.settings.Resolution
	s.splits = ComputeSplits(view.Near, view.Far, s.settings.Cascades, s.settings.SplitLambda)

	if len(s.cascades) != s.settings.Cascades {
		s.cascades = make([]Cascade, s.settings.Cascades)
	}

	g, ctx := errgroup.WithContext(ctx)
	var tris []*int
	add := func(fn func() int) {
		n := new(int)
		tris = append(tris, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			*n = fn()
			return nil
		})
	}

	for i, l := range frame.Lights {
		if l.Type == core.LightDirectional && l.CastShadows {
			s.sun = i
			s.lightDir = l.Direction.Normalize().Mul(-1)
			for c := range s.cascades {
				prev := s.cascades[c].Map
				s.cascades[c] = CascadeMatrix(view, l.Direction, s.splits[c], s.splits[c+1], res)
				if prev == nil || prev.Width != res {
					prev = NewDepthMap(res)
				}
				s.cascades[c].Map = prev
				cas := s.cascades[c]
				add(func() int { return cas.Map.Render(casters, cas.ViewProj, nil) })
			}
			st.Cascades = len(s.cascades)
			break
		}
	}

	budget := s.settings.MaxPointShadows
	for i, l := range frame.Lights {
		if budget == 0 {
			break
		}
		if !l.CastShadows {
			continue
		}
		switch l.Type {
		case core.LightPoint:
			cm := s.cubeFromPool(st.PointMaps)
			cm.setLight(l.Position, l.Range)
			s.points[i] = cm
			for f := range cm.Faces {
				face, vp := cm.Faces[f], cm.ViewProj[f]
				lin := &LinearDepth{Eye: cm.Position, Near: PointNear, Far: cm.Far}
				add(func() int { return face.Render(casters, vp, lin) })
			}
			st.PointMaps++
			budget--
		case core.LightSpot:
			sm := &spotMap{
				vp:         spotViewProj(l),
				tanHalfFov: float32(math.Tan(float64(min(l.SpotAngle, mgl32.DegToRad(85))))),
				lin:        &LinearDepth{Eye: l.Position, Near: PointNear, Far: max(l.Range, PointNear*2)},
				Map:        NewDepthMap(s.settings.PointResolution),
			}
			s.spots[i] = sm
			add(func() int { return sm.Map.Render(casters, sm.vp, sm.lin) })
			st.SpotMaps++
			budget--
		}
	}

	if err := g.Wait(); err != nil {
		return st, err
	}
	for _, n := range tris {
		st.Triangles += *n
	}
	return st, nil
}

func (s *System) cubeFromPool(i int) *CubeMap {
	for len(s.pool) <= i {
		s.pool = append(s.pool, NewCubeMap(s.settings.PointResolution))
	}
	return s.pool[i]
}

func spotViewProj(l core.Light) mgl32.Mat4 {
	if l.ShadowViewProj != (mgl32.Mat4{}) {
		return l.ShadowViewProj
	}
	dir := l.Direction.Normalize()
	up := mgl32.Vec3{0, 1, 0}
	if math.Abs(float64(dir.Dot(up))) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	fov := min(2*l.SpotAngle, mgl32.DegToRad(170))
	proj := mgl32.Perspective(fov, 1, PointNear, max(l.Range, PointNear*2))
	return proj.Mul4(mgl32.LookAtV(l.Position, l.Position.Add(dir), up))
}

// Visibility implements Sampler.
func (s *System) Visibility(lightIndex int, worldPos, normal mgl32.Vec3, viewDepth float32) float32 {
	r := s.settings.PCFRadius
	if lightIndex == s.sun && len(s.cascades) > 0 {
		c := s.cascades[SelectCascade(viewDepth, s.splits)]
		p := worldPos.Add(normal.Mul(s.settings.NormalBias + c.TexelWorld))
		uv, depth, ok := core.ProjectWith(c.ViewProj, p)
		if !ok || depth > 1 {
			return 1
		}
		bias := s.settings.DepthBias + (c.TexelWorld+slopeBias(normal, s.lightDir, c.TexelWorld, r))/c.DepthRange
		return c.Map.SamplePCF(uv, depth, bias, r)
	}
	if cm, ok := s.points[lightIndex]; ok {
		p := worldPos.Add(normal.Mul(s.settings.NormalBias))
		toLight := cm.Position.Sub(p)
		dist := toLight.Len()
		texel := 2 * dist / float32(cm.Faces[0].Width)
		bias := s.settings.DepthBias + slopeBias(normal, toLight.Mul(1/dist), texel, r)/(cm.Far-PointNear)
		return cm.Sample(p, bias, r)
	}
	if sm, ok := s.spots[lightIndex]; ok {
		p := worldPos.Add(normal.Mul(s.settings.NormalBias))
		uv, depth, ok := core.ProjectWith(sm.vp, p)
		if !ok || depth > 1 {
			return 1
		}
		toLight := sm.lin.Eye.Sub(p)
		dist := toLight.Len()
		texel := 2 * dist * sm.tanHalfFov / float32(sm.Map.Width)
		bias := s.settings.DepthBias + slopeBias(normal, toLight.Mul(1/dist), texel, r)/(sm.lin.Far-sm.lin.Near)
		return sm.Map.SamplePCF(uv, sm.lin.Normalize(p), bias, r)
	}
	return 1
}

// slopeBias is the depth change across the PCF footprint on a surface tilted
// away from the light, in world units.
func slopeBias(n, toLight mgl32.Vec3, texelWorld float32, r int) float32 {
	cos := mgl32.Clamp(n.Dot(toLight), 0.1, 1)
	tan := float32(math.Sqrt(float64(1-cos*cos))) / cos
	return texelWorld * float32(r+1) * tan
}
