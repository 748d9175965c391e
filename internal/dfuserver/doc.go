// Package dfuserver exposes the firmware updater of a device over HTTP.
//
// Routes:
//
//	GET  /v1/state              recorded intent: boot, swap, revert, dfu-detach
//	GET  /v1/report             report of the last reset
//	PUT  /v1/firmware/{offset}  write a chunk of the image at offset into DFU
//	POST /v1/firmware/commit    {"length": n}: mark the upload for the next reset
//	POST /v1/booted             confirm the running image
//	POST /v1/dfu                request DFU mode on the next reset
//
// Every response is a JSON envelope with a type of "sync" or "error".
package dfuserver
