package event

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/lk2023060901/garden-serializer/pkg/util/merr"
)

// Handler 是事件处理函数签名。
//
//   - e        ：当前事件；
//   - eventName：事件名；
//   - class    ：本次派发使用的注册类名（已转为小写），不一定等于 e.Type().Name；
//   - format   ：序列化格式；
//   - d        ：派发本事件的调度器，handler 可借此同步地重新派发。
//
// 返回的错误会中断本次派发，并以 ErrDispatchFailed 包装后传递给 Dispatch 的调用方，
// 原错误仍可通过 errors.Is 识别。
type Handler func(e Event, eventName, class, format string, d Dispatcher) error

// Capability 描述一种值能力（例如“是某个后端的对象代理”），用于按能力而非类名过滤监听器。
type Capability interface {
	Name() string
	Match(v any) bool
}

// Listener 描述一条监听规则。
//
// Event 与 Handler 必填；Class 为空表示匹配所有注册类，Format 为空表示匹配所有格式，
// Capability 为 nil 表示不检查事件对象的能力。
type Listener struct {
	Event      string
	Class      string
	Format     string
	Capability Capability
	Handler    Handler
}

// Subscriber 以显式列表的形式声明自己的监听规则。
type Subscriber interface {
	SubscribedEvents() []Listener
}

// Dispatcher 是同步、单线程语义的事件调度器。
//
// 对同一事件名，监听器按注册顺序执行；某个 handler 调用 StopPropagation 后，
// 后续 handler 不再执行。Dispatch 在调用方 goroutine 上同步完成，包括嵌套派发。
type Dispatcher interface {
	// AddListener 注册一条监听规则。
	AddListener(l Listener) error

	// AddSubscriber 按顺序注册订阅者声明的全部规则，任意一条非法时不注册任何规则。
	AddSubscriber(s Subscriber) error

	// HasListeners 判断在不考虑能力过滤的情况下是否存在匹配的监听器。
	HasListeners(eventName, class, format string) bool

	// Dispatch 以注册类 class 和格式 format 派发事件。
	Dispatch(eventName, class, format string, e Event) error
}

type listenerEntry struct {
	Listener
	loweredClass string
}

func (l listenerEntry) matches(loweredClass, format string) bool {
	if l.loweredClass != "" && l.loweredClass != loweredClass {
		return false
	}
	if l.Format != "" && l.Format != format {
		return false
	}
	return true
}

// defaultDispatcher 是 Dispatcher 的基础实现。
//
// 监听表只在注册时写入；派发时先在读锁下取快照，再在锁外执行 handler，
// 因此 handler 内部的嵌套派发不会与注册互相阻塞。
type defaultDispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]listenerEntry
}

var _ Dispatcher = (*defaultDispatcher)(nil)

// NewDispatcher 创建一个空的 Dispatcher。
func NewDispatcher() Dispatcher {
	return &defaultDispatcher{
		listeners: make(map[string][]listenerEntry),
	}
}

func validateListener(l Listener) error {
	if l.Event == "" {
		return merr.WrapErrListenerInvalid(l.Event, "event name is empty")
	}
	if l.Handler == nil {
		return merr.WrapErrListenerInvalid(l.Event, "handler is nil")
	}
	return nil
}

func newListenerEntry(l Listener) listenerEntry {
	return listenerEntry{Listener: l, loweredClass: strings.ToLower(l.Class)}
}

// AddListener 实现 Dispatcher.AddListener。
func (d *defaultDispatcher) AddListener(l Listener) error {
	if err := validateListener(l); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[l.Event] = append(d.listeners[l.Event], newListenerEntry(l))
	return nil
}

// AddSubscriber 实现 Dispatcher.AddSubscriber。
func (d *defaultDispatcher) AddSubscriber(s Subscriber) error {
	if s == nil {
		return merr.WrapErrParameterMissing("subscriber")
	}
	rows := s.SubscribedEvents()
	for _, l := range rows {
		if err := validateListener(l); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range rows {
		d.listeners[l.Event] = append(d.listeners[l.Event], newListenerEntry(l))
	}
	return nil
}

// HasListeners 实现 Dispatcher.HasListeners。
func (d *defaultDispatcher) HasListeners(eventName, class, format string) bool {
	return len(d.snapshot(eventName, strings.ToLower(class), format)) > 0
}

func (d *defaultDispatcher) snapshot(eventName, loweredClass, format string) []listenerEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lo.Filter(d.listeners[eventName], func(l listenerEntry, _ int) bool {
		return l.matches(loweredClass, format)
	})
}

// Dispatch 实现 Dispatcher.Dispatch。
func (d *defaultDispatcher) Dispatch(eventName, class, format string, e Event) error {
	if e == nil {
		return merr.WrapErrParameterMissing("event")
	}

	loweredClass := strings.ToLower(class)
	listeners := d.snapshot(eventName, loweredClass, format)
	if len(listeners) == 0 {
		return nil
	}

	object := objectOf(e)
	for _, l := range listeners {
		if l.Capability != nil && !l.Capability.Match(object) {
			continue
		}
		if err := l.Handler(e, eventName, loweredClass, format, d); err != nil {
			// 嵌套派发返回的错误已带有派发信息。
			if errors.Is(err, merr.ErrDispatchFailed) {
				return err
			}
			return merr.WrapErrDispatchFailed(eventName, class, err)
		}
		if e.IsPropagationStopped() {
			break
		}
	}
	return nil
}
