package event

// 序列化框架派发的事件名。
const (
	PreSerialize  = "serializer.pre_serialize"
	PostSerialize = "serializer.post_serialize"
)

// Event 是调度器派发的最小事件契约。
type Event interface {
	Context() *Context
	Type() Type
	StopPropagation()
	IsPropagationStopped() bool
}

// ObjectEvent 携带正在序列化的对象及其当前类型。
//
// 一个 ObjectEvent 只在一次派发周期内被 handler 修改；
// 类型只能通过 SetType 整体替换，保证类型名与参数同时更新。
type ObjectEvent struct {
	ctx     *Context
	object  any
	typ     Type
	stopped bool
}

var _ Event = (*ObjectEvent)(nil)

// NewObjectEvent 创建一个 ObjectEvent。
func NewObjectEvent(ctx *Context, object any, typ Type) *ObjectEvent {
	return &ObjectEvent{
		ctx:    ctx,
		object: object,
		typ:    typ.Clone(),
	}
}

func (e *ObjectEvent) Context() *Context {
	return e.ctx
}

func (e *ObjectEvent) Object() any {
	return e.object
}

// Type 返回当前类型的副本，修改返回值不会影响事件本身。
func (e *ObjectEvent) Type() Type {
	return e.typ.Clone()
}

// SetType 同时替换类型名与参数。
func (e *ObjectEvent) SetType(t Type) {
	e.typ = t.Clone()
}

func (e *ObjectEvent) StopPropagation() {
	e.stopped = true
}

func (e *ObjectEvent) IsPropagationStopped() bool {
	return e.stopped
}

// PreSerializeEvent 在对象被访问（编码）之前派发。
type PreSerializeEvent struct {
	ObjectEvent
}

// NewPreSerializeEvent 创建一个 PreSerializeEvent。
func NewPreSerializeEvent(ctx *Context, object any, typ Type) *PreSerializeEvent {
	return &PreSerializeEvent{ObjectEvent: *NewObjectEvent(ctx, object, typ)}
}

// WithType 返回一个携带相同对象与上下文、类型为 t 的全新事件。
// 新事件的传播状态是干净的，原事件不受影响。
func (e *PreSerializeEvent) WithType(t Type) *PreSerializeEvent {
	return NewPreSerializeEvent(e.ctx, e.object, t)
}

// PostSerializeEvent 在对象完成编码之后派发，Data 为该对象的编码结果。
type PostSerializeEvent struct {
	ObjectEvent
	Data []byte
}

// NewPostSerializeEvent 创建一个 PostSerializeEvent。
func NewPostSerializeEvent(ctx *Context, object any, typ Type, data []byte) *PostSerializeEvent {
	return &PostSerializeEvent{ObjectEvent: *NewObjectEvent(ctx, object, typ), Data: data}
}

// objectOf 返回事件携带的对象，非对象事件返回 nil。
func objectOf(e Event) any {
	if oe, ok := e.(interface{ Object() any }); ok {
		return oe.Object()
	}
	return nil
}
