package ecs

import (
	"reflect"
	"unsafe"

	"github.com/kamstrup/intmap"
)

// Hooks customise how component values are initialised, copied and destroyed
// inside column storage. Every hook receives slices of exactly Size bytes.
// Nil hooks fall back to zero fill, memory copy and no-op destruction.
type Hooks struct {
	Ctor func(dst []byte)
	Dtor func(ptr []byte)
	Copy func(dst, src []byte)
	Move func(dst, src []byte)
}

// ComponentInfo describes a registered component. A zero Size makes the
// component a tag: it takes part in families but owns no column.
type ComponentInfo struct {
	Id    EntityId
	Name  string
	Size  uintptr
	Align uintptr
	Hooks Hooks

	goType reflect.Type
}

// IsTag reports whether the component carries no data.
func (c *ComponentInfo) IsTag() bool {
	return c.Size == 0
}

func (c *ComponentInfo) construct(dst []byte) {
	if c.Hooks.Ctor != nil {
		c.Hooks.Ctor(dst)
		return
	}
	clear(dst)
}

func (c *ComponentInfo) destruct(ptr []byte) {
	if c.Hooks.Dtor != nil {
		c.Hooks.Dtor(ptr)
	}
}

func (c *ComponentInfo) copyValue(dst, src []byte) {
	if c.Hooks.Copy != nil {
		c.Hooks.Copy(dst, src)
		return
	}
	copy(dst, src)
}

func (c *ComponentInfo) moveValue(dst, src []byte) {
	if c.Hooks.Move != nil {
		c.Hooks.Move(dst, src)
		return
	}
	copy(dst, src)
}

// componentRegistry maps component ids to their metadata. Each World owns its
// own registry so independent worlds never share component ids.
type componentRegistry struct {
	infos  *intmap.Map[EntityId, *ComponentInfo]
	byType map[reflect.Type]EntityId
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{
		infos:  intmap.New[EntityId, *ComponentInfo](64),
		byType: make(map[reflect.Type]EntityId),
	}
}

func (r *componentRegistry) get(id EntityId) *ComponentInfo {
	info, _ := r.infos.Get(id)
	return info
}

func (r *componentRegistry) put(info *ComponentInfo) {
	r.infos.Put(info.Id, info)
	if info.goType != nil {
		r.byType[info.goType] = info.Id
	}
}

// NewComponent registers a dynamically described component and returns its id.
func (w *World) NewComponent(name string, size, align uintptr, hooks ...Hooks) EntityId {
	w.assertNotInProgress()
	if align == 0 {
		align = 1
	}
	info := &ComponentInfo{
		Id:    w.ids.newId(),
		Name:  name,
		Size:  size,
		Align: align,
	}
	if len(hooks) > 0 {
		info.Hooks = hooks[0]
	}
	w.components.put(info)
	w.logger.Debug().Str("component", name).Uint64("id", uint64(info.Id)).Uint64("size", uint64(size)).Msg("component registered")
	return info.Id
}

// NewTag registers a component without data.
func (w *World) NewTag(name string) EntityId {
	return w.NewComponent(name, 0, 1)
}

// RegisterComponent registers the Go type T as a component of w and returns
// its id. Registering the same type twice returns the existing id.
// T must not contain Go pointers, as column storage is untyped memory.
func RegisterComponent[T any](w *World, hooks ...Hooks) EntityId {
	t := reflect.TypeFor[T]()
	if id, ok := w.components.byType[t]; ok {
		return id
	}
	if hasPointers(t) {
		invariant(ErrPointerComponent, "%s", t)
	}
	var zero T
	id := w.NewComponent(t.String(), unsafe.Sizeof(zero), unsafe.Alignof(zero), hooks...)
	info := w.components.get(id)
	info.goType = t
	w.components.put(info)
	return id
}

// ComponentFor returns the id registered for the Go type T.
func ComponentFor[T any](w *World) (EntityId, bool) {
	id, ok := w.components.byType[reflect.TypeFor[T]()]
	return id, ok
}

// Component returns the metadata of a registered component, or nil.
func (w *World) Component(id EntityId) *ComponentInfo {
	return w.components.get(id)
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface,
		reflect.Slice, reflect.String, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
