package biz

// UnitPlan 一个单元覆盖的页范围，页码从 0 开始，闭区间。
type UnitPlan struct {
	Sequence  int
	FirstPage int
	LastPage  int
}

// Pages 返回单元包含的页数。
func (p UnitPlan) Pages() int {
	return p.LastPage - p.FirstPage + 1
}

// Planner 根据文档页数决定切分粒度。
type Planner struct {
	// SizeThreshold 页数不超过该值时逐页切分。
	SizeThreshold int
	// GroupSize 超过阈值时每个单元的页数。
	GroupSize int
}

// DefaultPlanner 返回默认切分策略：80 页以内逐页，否则每 5 页一组。
func DefaultPlanner() Planner {
	return Planner{SizeThreshold: 80, GroupSize: 5}
}

// PlanUnits 将 totalPages 页切分为有序单元。
func (p Planner) PlanUnits(totalPages int) []UnitPlan {
	if totalPages <= 0 {
		return nil
	}

	size := 1
	if totalPages > p.SizeThreshold && p.GroupSize > 1 {
		size = p.GroupSize
	}

	plans := make([]UnitPlan, 0, (totalPages+size-1)/size)
	for first := 0; first < totalPages; first += size {
		last := first + size - 1
		if last >= totalPages {
			last = totalPages - 1
		}
		plans = append(plans, UnitPlan{Sequence: len(plans), FirstPage: first, LastPage: last})
	}
	return plans
}

// ApplyCutoff 丢弃从 cutoff 页开始的单元，跨越 cutoff 的单元截断其页范围。
func ApplyCutoff(plans []UnitPlan, cutoff int) []UnitPlan {
	out := make([]UnitPlan, 0, len(plans))
	for _, p := range plans {
		if p.FirstPage >= cutoff {
			break
		}
		if p.LastPage >= cutoff {
			p.LastPage = cutoff - 1
		}
		out = append(out, p)
	}
	return out
}
