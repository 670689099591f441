package metadata

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/lk2023060901/garden-serializer/pkg/util/merr"
)

// Registry 记录宿主已知的类名。
//
// 不在 Registry 中的类型名被视为虚拟类型（仅由自定义 handler 识别的符号名）。
// 类名查找不区分大小写。
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*classEntry
	byType  map[reflect.Type]string
}

type classEntry struct {
	name string
	typ  reflect.Type
	opts classOptions
}

type classOptions struct {
	excluded bool
	groups   []string
	since    string
	until    string
}

// ClassOption 配置类级别的序列化元数据。
type ClassOption func(*classOptions)

// WithExcluded 将整个类标记为排除。
func WithExcluded() ClassOption {
	return func(o *classOptions) {
		o.excluded = true
	}
}

// WithGroups 设置类所属的序列化分组。
func WithGroups(groups ...string) ClassOption {
	return func(o *classOptions) {
		o.groups = append(o.groups, groups...)
	}
}

// WithSince 设置类从哪个版本开始参与序列化（含）。
func WithSince(version string) ClassOption {
	return func(o *classOptions) {
		o.since = version
	}
}

// WithUntil 设置类到哪个版本为止参与序列化（含）。
func WithUntil(version string) ClassOption {
	return func(o *classOptions) {
		o.until = version
	}
}

// NewRegistry 创建一个空的 Registry。
func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]*classEntry),
		byType:  make(map[reflect.Type]string),
	}
}

// Register 注册一个带元数据的类。sample 为该类的一个值（或指针），用于反射出结构信息。
func (r *Registry) Register(name string, sample any, opts ...ClassOption) error {
	if strings.TrimSpace(name) == "" {
		return merr.WrapErrClassNameInvalid(name)
	}
	if sample == nil {
		return merr.WrapErrParameterMissing("sample", "register class "+name)
	}
	typ := indirectType(reflect.TypeOf(sample))

	entry := &classEntry{name: name, typ: typ}
	for _, opt := range opts {
		opt(&entry.opts)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(name)
	// 只被 Declare 过的类名可以补充元数据。
	if existing, ok := r.classes[key]; ok && existing.typ != nil {
		return merr.WrapErrClassAlreadyRegistered(name)
	}
	r.classes[key] = entry
	if _, ok := r.byType[typ]; !ok {
		r.byType[typ] = name
	}
	return nil
}

// MustRegister 与 Register 相同，出错时 panic，适用于初始化阶段。
func (r *Registry) MustRegister(name string, sample any, opts ...ClassOption) {
	if err := r.Register(name, sample, opts...); err != nil {
		panic(err)
	}
}

// Declare 声明若干已知类名而不提供元数据，例如代理类名。
// 已存在的类名会被忽略。
func (r *Registry) Declare(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return merr.WrapErrClassNameInvalid(name)
		}
		key := strings.ToLower(name)
		if _, ok := r.classes[key]; ok {
			continue
		}
		r.classes[key] = &classEntry{name: name}
	}
	return nil
}

// Exists 判断 name 是否为已知类（不区分大小写）。
func (r *Registry) Exists(name string) bool {
	if name == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.classes[strings.ToLower(name)]
	return ok
}

// NameOf 返回 v 的 Go 类型所注册的类名。
func (r *Registry) NameOf(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	typ := indirectType(reflect.TypeOf(v))
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[typ]
	return name, ok
}

// Classes 返回全部已知类名，按字典序排列。
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for _, e := range r.classes {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (*classEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.classes[strings.ToLower(name)]
	return e, ok
}

func indirectType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
