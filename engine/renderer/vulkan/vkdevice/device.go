package vkdevice

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/core"
)

type VulkanPhysicalDevice struct {
	Handle     vk.PhysicalDevice
	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	// Graphics and presentation share one queue family.
	QueueFamilyIndex uint32
	SwapchainSupport VulkanSwapchainSupportInfo
	DepthFormat      vk.Format
	Portability      bool
}

type VulkanPhysicalDeviceRequirements struct {
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

func (d *Device) createDevice() error {
	physical, err := selectPhysicalDevice(d.instance, d.surface)
	if err != nil {
		return err
	}
	d.physical = physical

	core.LogInfo("Creating logical device...")
	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: physical.QueueFamilyIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	// Tessellation is needed by shaders drawing patches.
	deviceFeatures := vk.PhysicalDeviceFeatures{
		TessellationShader: physical.Features.TessellationShader,
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if physical.Portability {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}
	if err := check("vkCreateDevice", vk.CreateDevice(physical.Handle, &deviceCreateInfo, d.Allocator, &d.logical)); err != nil {
		return err
	}
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(d.logical, physical.QueueFamilyIndex, 0, &queue)
	d.queue = queue

	// One pool per worker thread, since a pool may only be used by one thread
	// at a time, and an auxiliary pool for the main thread.
	d.threadPools = make([]vk.CommandPool, d.opts.MaxThreads)
	for i := range d.threadPools {
		if d.threadPools[i], err = d.createCommandPool(); err != nil {
			return err
		}
	}
	if d.auxPool, err = d.createCommandPool(); err != nil {
		return err
	}
	core.LogInfo("Graphics command pools created.")
	return nil
}

func (d *Device) createCommandPool() (vk.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.physical.QueueFamilyIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(d.logical, &poolCreateInfo, d.Allocator, &pool)); err != nil {
		return vk.NullCommandPool, err
	}
	return pool, nil
}

func (d *Device) destroyDevice() {
	core.LogInfo("Destroying command pools...")
	for _, pool := range d.threadPools {
		if pool != vk.NullCommandPool {
			vk.DestroyCommandPool(d.logical, pool, d.Allocator)
		}
	}
	d.threadPools = nil
	if d.auxPool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.logical, d.auxPool, d.Allocator)
		d.auxPool = vk.NullCommandPool
	}

	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(d.logical, d.Allocator)
	d.logical = nil
	d.queue = nil
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if err := check("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities)); err != nil {
		return err
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := check("vkGetPhysicalDeviceSurfaceFormatsKHR", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil)); err != nil {
		return err
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, formatCount)
	if formatCount != 0 {
		if err := check("vkGetPhysicalDeviceSurfaceFormatsKHR", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, supportInfo.Formats)); err != nil {
			return err
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	var presentModeCount uint32
	if err := check("vkGetPhysicalDeviceSurfacePresentModesKHR", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil)); err != nil {
		return err
	}
	supportInfo.PresentModes = make([]vk.PresentMode, presentModeCount)
	if presentModeCount != 0 {
		if err := check("vkGetPhysicalDeviceSurfacePresentModesKHR", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, supportInfo.PresentModes)); err != nil {
			return err
		}
	}
	return nil
}

// DeviceDetectDepthFormat picks the first depth format usable as an optimally
// tiled depth attachment that transfers can also write to.
func DeviceDetectDepthFormat(device vk.PhysicalDevice) (vk.Format, bool) {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			return candidate, true
		}
	}
	return vk.FormatUndefined, false
}

func selectPhysicalDevice(instance vk.Instance, surface vk.Surface) (*VulkanPhysicalDevice, error) {
	var physicalDeviceCount uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &physicalDeviceCount, nil)); err != nil {
		return nil, err
	}
	if physicalDeviceCount == 0 {
		return nil, fmt.Errorf("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return nil, err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		DiscreteGPU:          runtime.GOOS != "darwin",
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	// A discrete GPU is preferred, anything that meets the rest of the
	// requirements is accepted on a second pass.
	for _, discrete := range []bool{requirements.DiscreteGPU, false} {
		requirements.DiscreteGPU = discrete
		for _, handle := range physicalDevices {
			candidate := &VulkanPhysicalDevice{Handle: handle}
			vk.GetPhysicalDeviceProperties(handle, &candidate.Properties)
			candidate.Properties.Deref()
			vk.GetPhysicalDeviceFeatures(handle, &candidate.Features)
			candidate.Features.Deref()
			vk.GetPhysicalDeviceMemoryProperties(handle, &candidate.Memory)
			candidate.Memory.Deref()

			if !physicalDeviceMeetsRequirements(candidate, surface, &requirements) {
				continue
			}
			logPhysicalDevice(candidate)
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("no physical devices were found which meet the requirements")
}

func physicalDeviceMeetsRequirements(device *VulkanPhysicalDevice, surface vk.Surface, requirements *VulkanPhysicalDeviceRequirements) bool {
	name := cString(device.Properties.DeviceName[:])
	if requirements.DiscreteGPU && device.Properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogDebug("%s is not a discrete GPU, skipping.", name)
		return false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device.Handle, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device.Handle, &queueFamilyCount, queueFamilies)

	found := false
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device.Handle, uint32(i), surface, &supportsPresent); res != vk.Success {
			continue
		}
		if supportsPresent == vk.True {
			device.QueueFamilyIndex = uint32(i)
			found = true
			break
		}
	}
	if !found {
		core.LogDebug("%s has no queue family for graphics and present, skipping.", name)
		return false
	}

	if err := DeviceQuerySwapchainSupport(device.Handle, surface, &device.SwapchainSupport); err != nil {
		core.LogDebug("%s: %s, skipping.", name, err)
		return false
	}
	if len(device.SwapchainSupport.Formats) == 0 || len(device.SwapchainSupport.PresentModes) == 0 {
		core.LogDebug("Required swapchain support not present on %s, skipping.", name)
		return false
	}

	var extensionCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(device.Handle, "", &extensionCount, nil); res != vk.Success {
		return false
	}
	extensions := make([]vk.ExtensionProperties, extensionCount)
	if res := vk.EnumerateDeviceExtensionProperties(device.Handle, "", &extensionCount, extensions); res != vk.Success {
		return false
	}
	available := make(map[string]bool, len(extensions))
	for i := range extensions {
		extensions[i].Deref()
		available[cString(extensions[i].ExtensionName[:])] = true
	}
	for _, required := range requirements.DeviceExtensionNames {
		if !available[required] {
			core.LogDebug("Required extension not found: '%s', skipping %s.", required, name)
			return false
		}
	}
	device.Portability = available["VK_KHR_portability_subset"]

	format, ok := DeviceDetectDepthFormat(device.Handle)
	if !ok {
		core.LogDebug("%s has no supported depth format, skipping.", name)
		return false
	}
	device.DepthFormat = format
	return true
}

func logPhysicalDevice(device *VulkanPhysicalDevice) {
	properties := device.Properties
	core.LogInfo("Selected device: '%s'.", cString(properties.DeviceName[:]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)
	for j := 0; j < int(device.Memory.MemoryHeapCount); j++ {
		heap := device.Memory.MemoryHeaps[j]
		heap.Deref()
		sizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", sizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", sizeGib)
		}
	}
	core.LogDebug("Queue family index: %d", device.QueueFamilyIndex)
}
