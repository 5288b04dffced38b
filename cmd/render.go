package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cjsb/SparseVoxelOctree/renderer"
	"github.com/cjsb/SparseVoxelOctree/scene"
	"github.com/cjsb/SparseVoxelOctree/tracer"
	"github.com/cjsb/SparseVoxelOctree/tracer/pathtrace"
	"github.com/cjsb/SparseVoxelOctree/tracer/raymarch"
	"github.com/cjsb/SparseVoxelOctree/types"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Flags shared by all render commands.
var (
	SceneFlags = []cli.Flag{
		cli.IntFlag{
			Name:  "width",
			Value: 512,
			Usage: "frame width",
		},
		cli.IntFlag{
			Name:  "height",
			Value: 512,
			Usage: "frame height",
		},
		cli.IntFlag{
			Name:  "level, l",
			Value: 8,
			Usage: "octree depth used when voxelizing meshes; 0 accepts any depth for compiled octrees",
		},
		cli.IntFlag{
			Name:  "workers",
			Usage: "number of render workers; defaults to the number of CPUs",
		},
		cli.BoolFlag{
			Name:  "solid",
			Usage: "fill the interior of closed meshes",
		},
		cli.Float64Flag{
			Name:  "exposure",
			Value: 1.0,
			Usage: "camera exposure for tone-mapping",
		},
	}

	CameraFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "eye",
			Usage: "camera position in octree space as x,y,z",
		},
		cli.Float64Flag{
			Name:  "yaw",
			Usage: "camera yaw in degrees; 0 looks down the -Z axis",
		},
		cli.Float64Flag{
			Name:  "pitch",
			Usage: "camera pitch in degrees",
		},
		cli.Float64Flag{
			Name:  "fov",
			Usage: "vertical field of view in degrees",
		},
	}
)

// Ray march a still frame.
func RenderFrame(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	supersample := ctx.Int("supersample")
	if supersample < 1 || supersample > 4 {
		return fmt.Errorf("supersample factor must be in the [1, 4] range; got %d", supersample)
	}
	frameW, frameH := uint32(ctx.Int("width")*supersample), uint32(ctx.Int("height")*supersample)

	settings := raymarch.DefaultSettings(frameW, frameH)
	view, err := raymarch.ParseView(ctx.String("view"))
	if err != nil {
		return err
	}
	settings.View = view
	settings.Beam = ctx.BoolT("beam")
	settings.BeamBlock = uint32(ctx.Int("beam-block"))
	settings.BeamOriginSize = float32(ctx.Float64("beam-origin-size"))
	settings.BeamDirSize = float32(ctx.Float64("beam-dir-size"))
	if err = settings.Validate(); err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r, err := setupRenderer(runCtx, ctx, frameW, frameH)
	if err != nil {
		return err
	}

	logger.Notice("rendering frame")
	frame, err := r.RenderFrame(runCtx, settings)
	if err != nil {
		return err
	}
	displayFrameStats(r.Stats())

	imgFile := ctx.String("out")
	start := time.Now()
	img := frame.Downsample(uint32(supersample), float32(ctx.Float64("exposure")))
	if err = tracer.SavePNG(img, imgFile); err != nil {
		return err
	}
	logger.Noticef("wrote frame to %s in %d ms", imgFile, time.Since(start).Nanoseconds()/1e6)
	return nil
}

// Progressively path trace a still frame.
func RenderPathTrace(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	frameW, frameH := uint32(ctx.Int("width")), uint32(ctx.Int("height"))
	spp := ctx.Int("spp")
	if spp < 1 {
		return fmt.Errorf("spp must be positive; got %d", spp)
	}

	settings := pathtrace.DefaultSettings()
	settings.Bounces = ctx.Int("bounces")
	var err error
	if settings.SunRadiance, err = vec3Flag(ctx, "sun", settings.SunRadiance); err != nil {
		return err
	}
	if settings.SunDirection, err = vec3Flag(ctx, "sun-dir", settings.SunDirection); err != nil {
		return err
	}
	if settings.SkyRadiance, err = vec3Flag(ctx, "sky", settings.SkyRadiance); err != nil {
		return err
	}
	if err = settings.Validate(); err != nil {
		return err
	}
	channel, err := pathtrace.ParseChannel(ctx.String("channel"))
	if err != nil {
		return err
	}

	imgFile := ctx.String("out")
	ext := strings.ToLower(filepath.Ext(imgFile))
	if ext != ".exr" && ext != ".png" {
		return fmt.Errorf("%w: output %q must be an .exr or .png file", renderer.ErrUnsupportedFormat, imgFile)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r, err := setupRenderer(runCtx, ctx, frameW, frameH)
	if err != nil {
		return err
	}
	if err = r.StartPathTracing(runCtx, settings); err != nil {
		return err
	}
	defer r.StopPathTracing()

	logger.Noticef("path tracing %d samples per pixel", spp)
	start := time.Now()
	for sample := 0; sample < spp; sample++ {
		if err = r.PathTrace(runCtx); err != nil {
			// Keep whatever has been accumulated so far.
			if errors.Is(err, renderer.ErrInterrupted) {
				logger.Warningf("interrupted after %d samples", sample)
				break
			}
			return err
		}
	}
	stats := r.Stats()
	displayFrameStats(stats)
	logger.Noticef(
		"accumulated %d spp in %d ms; luminance mean %.4f, variance %.6f",
		stats.SPP, time.Since(start).Nanoseconds()/1e6, stats.NoiseMean, stats.NoiseVariance,
	)

	pt, err := r.PathTracer()
	if err != nil {
		return err
	}
	if ext == ".exr" {
		return pt.Save(imgFile, channel, ctx.Bool("half"))
	}
	return pt.SavePNG(imgFile, channel, float32(ctx.Float64("exposure")))
}

// Load the scene given as the command argument and point its camera
// according to the camera flags.
func setupRenderer(runCtx context.Context, ctx *cli.Context, frameW, frameH uint32) (*renderer.Renderer, error) {
	if ctx.NArg() != 1 {
		return nil, errors.New("missing scene file argument")
	}

	r := renderer.New(renderer.Options{
		FrameW:            frameW,
		FrameH:            frameH,
		Workers:           ctx.Int("workers"),
		Scheduler:         tracer.PerfectScheduler(),
		SolidVoxelization: ctx.Bool("solid"),
	})
	if err := r.LoadScene(runCtx, ctx.Args().First(), ctx.Int("level")); err != nil {
		return nil, err
	}
	if !r.HasOctree() {
		logger.Warning("scene is empty; rendering background only")
	}

	sc := r.Scene()
	if err := setupCamera(ctx, sc.Camera); err != nil {
		return nil, err
	}
	sc.Camera.SetupProjection(float32(frameW) / float32(frameH))
	logger.Debugf("camera at %v\n%s", sc.Camera.Position, sc.Camera.Frustum)
	return r, nil
}

// Override the scene camera with any camera flags that were set. Scene
// camera hints apply otherwise.
func setupCamera(ctx *cli.Context, cam *scene.Camera) error {
	var err error
	if cam.Position, err = vec3Flag(ctx, "eye", cam.Position); err != nil {
		return err
	}
	if ctx.IsSet("yaw") {
		cam.Yaw = mgl32.DegToRad(float32(ctx.Float64("yaw")))
	}
	if ctx.IsSet("pitch") {
		cam.Pitch = mgl32.DegToRad(float32(ctx.Float64("pitch")))
	}
	if ctx.IsSet("fov") {
		fov := float32(ctx.Float64("fov"))
		if fov <= 0 || fov >= 180 {
			return fmt.Errorf("fov must be in the (0, 180) range; got %f", fov)
		}
		cam.FOV = fov
	}
	cam.Update()
	return nil
}

// Parse an x,y,z flag value. The fallback is returned if the flag is unset.
func vec3Flag(ctx *cli.Context, name string, fallback types.Vec3) (types.Vec3, error) {
	if !ctx.IsSet(name) {
		return fallback, nil
	}

	tokens := strings.Split(ctx.String(name), ",")
	if len(tokens) != 3 {
		return fallback, fmt.Errorf("--%s: expected 3 comma separated values; got %q", name, ctx.String(name))
	}
	var v types.Vec3
	for idx, token := range tokens {
		f, err := strconv.ParseFloat(strings.TrimSpace(token), 32)
		if err != nil {
			return fallback, fmt.Errorf("--%s: %w", name, err)
		}
		v[idx] = float32(f)
	}
	return v, nil
}

func displayFrameStats(stats renderer.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Worker", "Primary", "Block height", "% of frame", "Render time"})
	for _, stat := range stats.Tracers {
		table.Append([]string{
			stat.Id,
			fmt.Sprintf("%t", stat.IsPrimary),
			fmt.Sprintf("%d", stat.BlockH),
			fmt.Sprintf("%02.1f %%", stat.FramePercent),
			stat.RenderTime.String(),
		})
	}
	table.SetFooter([]string{"", "", "", "TOTAL", stats.RenderTime.String()})

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}
