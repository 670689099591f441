// Package exclusion 提供序列化跳过策略（ExclusionStrategy）的常用实现。
package exclusion

import (
	"strings"

	"github.com/blang/semver/v4"
	"github.com/samber/lo"

	"github.com/lk2023060901/garden-serializer/internal/serializer/event"
	"github.com/lk2023060901/garden-serializer/internal/serializer/metadata"
	"github.com/lk2023060901/garden-serializer/pkg/log"
)

// DefaultGroup 是未声明分组的类隐含所属的分组。
const DefaultGroup = "Default"

// ExcludedStrategy 跳过显式标记为 Excluded 的类。
type ExcludedStrategy struct{}

var _ event.ExclusionStrategy = ExcludedStrategy{}

func (ExcludedStrategy) ShouldSkipClass(meta *metadata.ClassMetadata, _ *event.Context) bool {
	return meta != nil && meta.Excluded
}

// GroupsStrategy 按上下文中的分组过滤类。
//
// 上下文未指定分组时不做过滤；类未声明分组时视为属于 DefaultGroup。
// 分组名比较不区分大小写。
type GroupsStrategy struct{}

var _ event.ExclusionStrategy = GroupsStrategy{}

func (GroupsStrategy) ShouldSkipClass(meta *metadata.ClassMetadata, ctx *event.Context) bool {
	if meta == nil || ctx == nil || len(ctx.Groups()) == 0 {
		return false
	}
	classGroups := meta.Groups
	if len(classGroups) == 0 {
		classGroups = []string{DefaultGroup}
	}
	return len(lo.Intersect(lowerAll(classGroups), lowerAll(ctx.Groups()))) == 0
}

func lowerAll(groups []string) []string {
	return lo.Map(groups, func(g string, _ int) string {
		return strings.ToLower(g)
	})
}

// VersionStrategy 按上下文版本与类的 Since/Until 区间过滤类。
//
// 区间为 [Since, Until]，两端均可省略。上下文版本为空时不做过滤；
// 版本号无法解析时记录告警并视为不跳过。
type VersionStrategy struct{}

var _ event.ExclusionStrategy = VersionStrategy{}

func (VersionStrategy) ShouldSkipClass(meta *metadata.ClassMetadata, ctx *event.Context) bool {
	if meta == nil || ctx == nil || ctx.Version() == "" {
		return false
	}
	if meta.Since == "" && meta.Until == "" {
		return false
	}

	current, err := semver.ParseTolerant(ctx.Version())
	if err != nil {
		log.Ctx(ctx.Ctx()).RatedWarn(1, "invalid serialization version, ignore version exclusion",
			log.FieldClass(meta.Name), log.FieldVersion(ctx.Version()))
		return false
	}
	if meta.Since != "" {
		since, err := semver.ParseTolerant(meta.Since)
		if err == nil && current.LT(since) {
			return true
		}
	}
	if meta.Until != "" {
		until, err := semver.ParseTolerant(meta.Until)
		if err == nil && current.GT(until) {
			return true
		}
	}
	return false
}

// DisjunctStrategy 在任意一个子策略要求跳过时跳过。
type DisjunctStrategy []event.ExclusionStrategy

var _ event.ExclusionStrategy = DisjunctStrategy(nil)

// Disjunct 组合多个策略，nil 策略会被忽略。
func Disjunct(strategies ...event.ExclusionStrategy) DisjunctStrategy {
	return lo.Filter(strategies, func(s event.ExclusionStrategy, _ int) bool {
		return s != nil
	})
}

func (d DisjunctStrategy) ShouldSkipClass(meta *metadata.ClassMetadata, ctx *event.Context) bool {
	return lo.SomeBy(d, func(s event.ExclusionStrategy) bool {
		return s.ShouldSkipClass(meta, ctx)
	})
}

// Default 返回默认策略组合：显式排除、分组与版本。
func Default() DisjunctStrategy {
	return Disjunct(ExcludedStrategy{}, GroupsStrategy{}, VersionStrategy{})
}
