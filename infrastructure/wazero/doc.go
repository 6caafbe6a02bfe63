// Package wazero connects the envelope protocol to WebAssembly guests run
// by the wazero runtime. It carries envelopes across a wasm32 boundary in
// both directions:
//
//   - Memory implements ports.Memory over a guest's linear memory, using the
//     guest's allocate and deallocate exports, so the host can encode
//     arguments into the guest and release envelopes the guest produced.
//   - Instance calls guest exports that return envelopes.
//   - RegisterWithRuntime exposes a Go export registry to guests as host
//     functions whose envelopes are built in the calling guest's memory.
//
// # Basic Usage
//
//	runtime := wazero.NewRuntime(ctx)
//	host, err := nwazero.RegisterWithRuntime(ctx, runtime, newRegistry,
//	    nwazero.WithModuleName("textkit"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer host.Close()
//
//	mod, err := runtime.Instantiate(ctx, guestWasm)
//	inst, err := nwazero.NewInstance(ctx, mod)
//	addr, err := inst.Call(ctx, "greet", namePtr)
//	greeting, err := envelope.NewConsumer(inst.Memory()).String(addr)
//
// Pointers on the guest side are 32 bits, so every envelope uses the
// 4-byte layout.
package wazero
