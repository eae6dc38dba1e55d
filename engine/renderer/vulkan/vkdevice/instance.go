package vkdevice

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/core"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

func (d *Device) createInstance() error {
	procAddr := d.platform.GetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vk: %w", err)
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(d.opts.AppName),
		PEngineName:        VulkanSafeString("twinrender"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{}, d.platform.RequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1 // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}

	var layers []string
	if d.opts.Debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		for _, e := range extensions {
			core.LogDebug("Required extension: %s", e)
		}

		found, err := hasInstanceLayer(validationLayer)
		if err != nil {
			return err
		}
		if found {
			layers = append(layers, validationLayer)
			core.LogInfo("Validation layers enabled.")
		} else {
			core.LogWarn("Validation layer %s is missing, continuing without it.", validationLayer)
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, d.Allocator, &d.instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(d.instance); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if d.opts.Debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		if err := check("vkCreateDebugReportCallbackEXT", vk.CreateDebugReportCallback(d.instance, &debugCreateInfo, d.Allocator, &d.debugCallback)); err != nil {
			return err
		}
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func hasInstanceLayer(name string) (bool, error) {
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return false, err
	}
	available := make([]vk.LayerProperties, count)
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return false, err
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			return true, nil
		}
	}
	return false, nil
}

func (d *Device) destroyInstance() {
	if d.instance == nil {
		return
	}
	if d.debugCallback != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(d.instance, d.debugCallback, d.Allocator)
		d.debugCallback = vk.NullDebugReportCallback
	}
	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(d.instance, d.Allocator)
	d.instance = nil
}

// Validation messages go through the shader warning channel so they can be
// silenced together with the GLSL compiler output.
func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogShaderWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogShaderWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
