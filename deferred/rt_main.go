package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/gekko3d/lumen"
	"github.com/gekko3d/lumen/deferred/rt/app"
	"github.com/gekko3d/lumen/deferred/rt/pipeline"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

type options struct {
	settingsPath string
	scenePath    string
	width        int
	height       int
	debug        bool

	headless  bool
	frames    int
	outDir    string
	format    string
	reference string
	minPSNR   float64
}

func main() {
	var o options
	flag.StringVar(&o.settingsPath, "settings", "", "YAML settings file (defaults when empty)")
	flag.StringVar(&o.scenePath, "scene", "", "JSON scene preset (built-in scene when empty)")
	flag.IntVar(&o.width, "width", 1280, "render width")
	flag.IntVar(&o.height, "height", 720, "render height")
	flag.BoolVar(&o.debug, "debug", false, "debug logging and the tile light overlay")
	flag.BoolVar(&o.headless, "headless", false, "render without a window and write frames to -out")
	flag.IntVar(&o.frames, "frames", 1, "frames to render in headless mode")
	flag.StringVar(&o.outDir, "out", "frames", "output directory for headless frames")
	flag.StringVar(&o.format, "format", "png", "headless output format: png or webp")
	flag.StringVar(&o.reference, "reference", "", "compare the last headless frame against this image")
	flag.Float64Var(&o.minPSNR, "min-psnr", 30, "minimum PSNR in dB against -reference")
	flag.Parse()

	log := lumen.NewDefaultLogger("lumen", o.debug)
	if err := run(o, log); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(o options, log *lumen.DefaultLogger) error {
	settings := lumen.DefaultSettings()
	if o.settingsPath != "" {
		var err error
		if settings, err = lumen.LoadSettings(o.settingsPath); err != nil {
			return err
		}
	}

	scene := lumen.DefaultScenePreset()
	if o.scenePath != "" {
		var err error
		if scene, err = lumen.LoadScenePreset(o.scenePath); err != nil {
			return err
		}
	}

	if o.headless {
		return runHeadless(context.Background(), o, settings, scene, log)
	}
	return runWindow(o, settings, scene, log)
}

func runHeadless(ctx context.Context, o options, settings lumen.Settings, scene *lumen.ScenePreset, log *lumen.DefaultLogger) error {
	prof := pipeline.NewProfiler()
	p, err := pipeline.New(settings, o.width, o.height, log, pipeline.WithProfiler(prof))
	if err != nil {
		return err
	}
	defer p.Close()
	comp := pipeline.NewCompositor(o.width, o.height)
	out := &pipeline.FilePresenter{Dir: o.outDir, Format: o.format}

	var lastPath string
	for i := 0; i < o.frames; i++ {
		frame, err := scene.Frame(o.width, o.height, uint64(i))
		if err != nil {
			return err
		}
		res, err := p.Render(ctx, frame)
		if err != nil {
			return err
		}
		if err := out.Present(ctx, res.Index, comp.Compose(res.Color)); err != nil {
			return err
		}
		lastPath = out.Path(res.Index)
		log.Debugf("frame %d: %v drawn=%d tiles=%d", res.Index, res.Stats.FrameTime, res.Stats.GBuffer.Drawn, res.Stats.Cull.Tiles)
	}
	log.Infof("wrote %d frames to %s\n%s", o.frames, o.outDir, prof)

	if o.reference == "" || lastPath == "" {
		return nil
	}
	ref, err := pipeline.LoadImage(o.reference)
	if err != nil {
		return err
	}
	got, err := pipeline.LoadImage(lastPath)
	if err != nil {
		return err
	}
	psnr, err := pipeline.PSNR(got, ref)
	if err != nil {
		return err
	}
	log.Infof("PSNR against %s: %.2f dB", o.reference, psnr)
	if psnr < o.minPSNR {
		return fmt.Errorf("PSNR %.2f dB below %.2f dB", psnr, o.minPSNR)
	}
	return nil
}

func runWindow(o options, settings lumen.Settings, scene *lumen.ScenePreset, log *lumen.DefaultLogger) error {
	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(o.width, o.height, "lumen", nil, nil)
	if err != nil {
		return err
	}
	defer window.Destroy()

	application := app.NewApp(window, settings, scene, log)
	application.DebugMode = o.debug
	if err := application.Init(); err != nil {
		return err
	}
	defer application.Release()

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})

	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		dx, dy := xpos-application.MouseX, ypos-application.MouseY
		application.MouseX = xpos
		application.MouseY = ypos
		application.Look(dx, dy)
	})

	ctx := context.Background()
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyTab:
			application.MouseCaptured = !application.MouseCaptured
			if application.MouseCaptured {
				w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			} else {
				w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeyF1:
			application.DebugMode = !application.DebugMode
		case glfw.KeyF2:
			application.CPUTiles = !application.CPUTiles
		case glfw.KeyF12:
			if err := application.Snapshot(ctx); err != nil {
				log.Warnf("%v", err)
			}
		}
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		application.Update()
		application.Render(ctx)
	}
	return nil
}
