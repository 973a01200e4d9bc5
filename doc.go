// Package teximage implements the texture image manager of a GPU
// path-tracing renderer: it deduplicates a scene's declared image and
// volume references, decodes and normalizes their pixel data into a
// small closed set of device-friendly layouts, optionally compresses
// volumetric data into a sparse tiled form, and uploads the results
// into numbered device texture slots that the rendering kernels index
// by a flat integer handle.
//
// # Quick Start
//
//	import "github.com/gogpu/teximage"
//
//	mgr := teximage.NewManager(teximage.ManagerOptions{})
//	handle, meta, err := mgr.AddImage(teximage.ImageIdentity{
//		Path:          "textures/floor.png",
//		Interpolation: teximage.InterpLinear,
//		Extension:     teximage.ExtendRepeat,
//		Alpha:         teximage.AlphaAuto,
//		Colorspace:    "sRGB",
//	}, teximage.AddImageOptions{})
//
//	coord := teximage.NewCoordinator(dev, teximage.CoordinatorOptions{})
//	coord.DeviceUpdate(mgr, progress)
//
// # Architecture
//
// The public surface is organized as:
//   - Data model: PixelKind, GridKind, ImageIdentity, ImageMetaData, ImageRecord
//   - Manager: the slot-allocating, reference-counted image cache
//   - Coordinator: the single-device-mutex upload scheduler
//   - Collaborators: ImageReader, VolumeReader, BuiltinCallbacks, ColorSpace,
//     Device, Pool, Progress — interfaces the core consumes without
//     depending on any concrete decoder, colorspace library, or GPU backend
//
// Concrete collaborator implementations live in sibling packages:
// colorspace (ColorSpace), imageio (ImageReader), device (Device,
// cpu reference + registry), device/native (GPU-backed Device), sparse
// (the sparse volume tile encoder used internally by the pipeline), and
// merge (the independent EXR multiview compositor).
package teximage
