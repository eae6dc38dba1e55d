package testbed

import (
	gomath "math"
	"path/filepath"

	"github.com/spaghettifunk/twinrender/engine"
	"github.com/spaghettifunk/twinrender/engine/config"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/spaghettifunk/twinrender/engine/renderer"
	"github.com/spaghettifunk/twinrender/engine/renderer/components"
)

const (
	globalsBlock = "Globals"
	sceneShader  = "scene"
	postShader   = "post"
	rampTexture  = "ramp.png"
	// Sampler bindings declared in the resource table.
	sceneSlot = 1
	rampSlot  = 2
	// Quads along each side of the height field.
	gridSize = 96
	// World space width of the height field.
	gridExtent = 8.0
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	time   float32
	width  uint32
	height uint32

	camera *components.Camera
	target *renderer.RenderTarget
	ramp   *renderer.Texture
	// Totals of the last frame, for the debug log.
	scene renderer.RunStats
}

func NewTestGame(cfg *config.Config) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Config: cfg,
			State: &gameState{
				width:  cfg.Application.Width,
				height: cfg.Application.Height,
			},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

// Initialize creates the offscreen target the height field is drawn into and
// loads the colour ramp it is shaded with.
func (g *TestGame) Initialize(r *renderer.Renderer) error {
	s := g.state()
	t, err := r.NewRenderTarget(int(s.width), int(s.height))
	if err != nil {
		return err
	}
	s.target = t

	ramp, err := r.LoadTexture(filepath.Join(g.Config.Resources.TextureDir, rampTexture))
	if err != nil {
		return err
	}
	s.ramp = ramp
	return nil
}

func newCamera() *components.Camera {
	c := components.NewCamera(math.NewVec3Zero(), 11)
	c.Pitch(math.DegToRad(27))
	return c
}

// Update advances the waves and slowly orbits the camera around the field.
func (g *TestGame) Update(deltaTime float64) error {
	s := g.state()
	s.time += float32(deltaTime)
	s.camera.Yaw(float32(deltaTime) * 0.3)
	return nil
}

// Render draws the height field into the offscreen target on every worker,
// then copies the target to the window with a single full screen quad.
func (g *TestGame) Render(r *renderer.Renderer, deltaTime float64) error {
	s := g.state()

	if err := r.SelectRenderTarget(sceneSlot, s.target); err != nil {
		core.LogFatal("%s", err)
	}
	if err := r.BindTexture(rampSlot, s.ramp); err != nil {
		core.LogFatal("%s", err)
	}
	if err := r.ClearDepthBuffer(); err != nil {
		return err
	}

	aspect := float32(s.target.Width) / float32(s.target.Height)
	projection := math.NewMat4Perspective(math.DegToRad(45), aspect, 0.1, 100)
	r.SetUniformMat4(globalsBlock, "projection", projection)
	r.SetUniformMat4(globalsBlock, "view", s.camera.GetView())
	r.SetUniformMat4(globalsBlock, "model", math.NewMat4Identity())
	r.SetUniformVec3(globalsBlock, "light_dir", math.NewVec3(0.3, 1, 0.5).Normalized())
	r.SetUniformFloat(globalsBlock, "time", s.time)
	if err := r.SynchroniseUniformBuffer(globalsBlock); err != nil {
		return err
	}

	stats, err := r.RenderPass(sceneShader, heightFieldWorker(s.time))
	if err != nil {
		return err
	}
	s.scene = stats

	r.DeselectRenderTarget()
	_, err = r.RenderPass(postShader, fullScreenWorker)
	return err
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width, s.height = width, height
	return nil
}

// Shutdown saves the last frame of the offscreen target when a snapshot path
// is configured.
func (g *TestGame) Shutdown(r *renderer.Renderer) error {
	s := g.state()
	if s.ramp != nil {
		if err := r.DestroyTexture(s.ramp); err != nil {
			return err
		}
		s.ramp = nil
	}
	if s.target == nil {
		return nil
	}
	if path := g.Config.Renderer.Snapshot; path != "" {
		if err := r.Snapshot(s.target, path); err != nil {
			return err
		}
		core.LogInfo("saved %s to %s", s.target, path)
	}
	err := r.DestroyRenderTarget(s.target)
	s.target = nil
	return err
}

func heightAt(x, z, t float32) float32 {
	return 0.4*float32(gomath.Sin(float64(x*1.3+t))) + 0.3*float32(gomath.Cos(float64(z*1.7-t*0.7)))
}

// colourFor maps a height to its coordinate along the colour ramp. The scene
// shader only reads the first component.
func colourFor(y float32) math.Vec3 {
	k := math.Clamp((y+0.7)/1.4, 0, 1)
	return math.NewVec3(k, k, k)
}

func gridPoint(i, j int, t float32) math.Vec3 {
	step := float32(gridExtent) / gridSize
	x := -gridExtent/2 + float32(i)*step
	z := -gridExtent/2 + float32(j)*step
	return math.NewVec3(x, heightAt(x, z, t), z)
}

// heightFieldWorker gives every worker a band of rows of the grid. Each quad
// is two flat shaded triangles.
func heightFieldWorker(t float32) renderer.Worker {
	return func(ctx renderer.WorkerContext) {
		first, last := ctx.Slice(gridSize)
		for j := first; j < last; j++ {
			for i := 0; i < gridSize; i++ {
				p00 := gridPoint(i, j, t)
				p10 := gridPoint(i+1, j, t)
				p01 := gridPoint(i, j+1, t)
				p11 := gridPoint(i+1, j+1, t)
				addFlat(ctx, p00, p01, p10)
				addFlat(ctx, p10, p01, p11)
			}
		}
	}
}

func addFlat(ctx renderer.WorkerContext, a, b, c math.Vec3) {
	n := b.Sub(a).Cross(c.Sub(a)).Normalized()
	ctx.Batch.AddV3N3C3(ctx.Flusher,
		a, n, colourFor(a.Y),
		b, n, colourFor(b.Y),
		c, n, colourFor(c.Y))
}

// fullScreenWorker covers clip space with two textured triangles. Only the
// first worker has anything to draw.
func fullScreenWorker(ctx renderer.WorkerContext) {
	if ctx.Thread != 0 {
		return
	}
	v := func(x, y float32) (math.Vec2, math.Vec2) {
		return math.NewVec2(x, y), math.NewVec2((x+1)/2, (y+1)/2)
	}
	p0, t0 := v(-1, -1)
	p1, t1 := v(1, -1)
	p2, t2 := v(1, 1)
	p3, t3 := v(-1, 1)
	ctx.Batch.AddV2T2(ctx.Flusher, p0, t0, p1, t1, p2, t2)
	ctx.Batch.AddV2T2(ctx.Flusher, p0, t0, p2, t2, p3, t3)
}
