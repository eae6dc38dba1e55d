package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/twinrender/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// GraphicsAPI selects how the window is created: with a current OpenGL
// context, or bare for a Vulkan surface.
type GraphicsAPI int

const (
	GraphicsAPIOpenGL GraphicsAPI = iota
	GraphicsAPIVulkan
)

type Platform struct {
	Window *glfw.Window
	api    GraphicsAPI
}

func New() (*Platform, error) {
	return &Platform{
		Window: nil,
	}, nil
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32, api GraphicsAPI) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %w", err)
	}
	p.api = api

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	switch api {
	case GraphicsAPIOpenGL:
		glfw.WindowHint(glfw.ContextVersionMajor, 4)
		glfw.WindowHint(glfw.ContextVersionMinor, 1)
		glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
		glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	case GraphicsAPIVulkan:
		if !glfw.VulkanSupported() {
			return fmt.Errorf("glfw reports no Vulkan loader")
		}
		glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.
	}

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}
	p.Window = window
	if api == GraphicsAPIOpenGL {
		window.MakeContextCurrent()
		glfw.SwapInterval(1)
	}

	p.Window.SetKeyCallback(keyCallback)
	p.Window.SetCloseCallback(closeCallback)
	p.Window.SetFramebufferSizeCallback(framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

func (p *Platform) ShouldClose() bool {
	return p.Window.ShouldClose()
}

// SwapBuffers presents the back buffer of the OpenGL context. Vulkan presents
// through its own queue.
func (p *Platform) SwapBuffers() {
	if p.api == GraphicsAPIOpenGL {
		p.Window.SwapBuffers()
	}
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// RequiredInstanceExtensions lists the instance extensions the window system
// needs to create a Vulkan surface.
func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// GetInstanceProcAddress is the loader entry point handed to the Vulkan bindings.
func (p *Platform) GetInstanceProcAddress() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

// CreateSurface creates a Vulkan surface for the window. instance is the raw
// VkInstance handle.
func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, nil)
}

func keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press {
		return
	}
	var ctx core.EventContext
	ctx.Data.I32[0] = int32(key)
	if core.EventFire(core.EVENT_CODE_KEY_PRESSED, w, ctx) {
		return
	}
	if key == glfw.KeyEscape {
		w.SetShouldClose(true)
		core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, w, core.EventContext{})
	}
}

func closeCallback(w *glfw.Window) {
	core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, w, core.EventContext{})
}

func framebufferSizeCallback(w *glfw.Window, width, height int) {
	var ctx core.EventContext
	ctx.Data.U16[0] = uint16(width)
	ctx.Data.U16[1] = uint16(height)
	core.EventFire(core.EVENT_CODE_RESIZED, w, ctx)
}
