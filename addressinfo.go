package symres

import (
	"github.com/coral-mesh/symres/internal/lowlevel"
)

// textAlloc backs all descriptor text. Resolution runs inside the host's
// intercepted allocation routines, so descriptor fills must not touch the
// ambient allocation path.
var textAlloc = lowlevel.New()

// AddressInfo describes one inlined-frame resolution of a code address. The
// zero value is the fully cleared state: all text absent, all numbers zero.
// Text fields are exclusive owned copies; Clear releases them exactly once.
type AddressInfo struct {
	Address      uint64
	module       lowlevel.Str
	ModuleOffset uint64
	function     lowlevel.Str
	file         lowlevel.Str
	Line         int
	Column       int
}

// Module returns the containing module's path, or "" when unknown.
func (ai *AddressInfo) Module() string {
	return ai.module.String()
}

// HasModule reports whether the module was identified.
func (ai *AddressInfo) HasModule() bool {
	return ai.module.IsSet()
}

// Function returns the function name, or "" when unknown.
func (ai *AddressInfo) Function() string {
	return ai.function.String()
}

// File returns the source file path, or "" when unknown.
func (ai *AddressInfo) File() string {
	return ai.file.String()
}

// FillAddressAndModuleInfo records the queried address and its containing
// module. Module identification is often known before (or without) full
// symbolization, so this is separate from FillSourceLocation.
func (ai *AddressInfo) FillAddressAndModuleInfo(addr uint64, module string, offset uint64) {
	ai.Address = addr
	ai.module.Release()
	ai.module = textAlloc.Strdup(module)
	ai.ModuleOffset = offset
}

// FillSourceLocation records the symbolized function and source position.
// Zero line/column mean unknown.
func (ai *AddressInfo) FillSourceLocation(function, file string, line, column int) {
	ai.function.Release()
	ai.function = textAlloc.Strdup(function)
	ai.file.Release()
	ai.file = textAlloc.Strdup(file)
	ai.Line = line
	ai.Column = column
}

// Clear releases all owned text and resets the descriptor to the zero state.
// Clearing an already cleared descriptor is a no-op.
func (ai *AddressInfo) Clear() {
	ai.module.Release()
	ai.function.Release()
	ai.file.Release()
	*ai = AddressInfo{}
}

// DataInfo describes a resolved data (non-code) address: the name and bounds
// of the symbol containing it. Size 0 means unknown. As with AddressInfo the
// text fields are owned copies; callers release them via Clear.
type DataInfo struct {
	Address      uint64
	module       lowlevel.Str
	ModuleOffset uint64
	name         lowlevel.Str
	Start        uint64
	Size         uint64
}

// Module returns the containing module's path, or "" when unknown.
func (di *DataInfo) Module() string {
	return di.module.String()
}

// Name returns the data symbol's name, or "" when unknown.
func (di *DataInfo) Name() string {
	return di.name.String()
}

// FillModuleInfo records the containing module of the data address.
func (di *DataInfo) FillModuleInfo(module string, offset uint64) {
	di.module.Release()
	di.module = textAlloc.Strdup(module)
	di.ModuleOffset = offset
}

// FillSymbol records the resolved symbol name and bounds.
func (di *DataInfo) FillSymbol(name string, start, size uint64) {
	di.name.Release()
	di.name = textAlloc.Strdup(name)
	di.Start = start
	di.Size = size
}

// Clear releases owned text and resets the descriptor to the zero state.
func (di *DataInfo) Clear() {
	di.module.Release()
	di.name.Release()
	*di = DataInfo{}
}
