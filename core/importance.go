package core

import "sort"

// ImportanceEntry 特征重要性表中的一行
type ImportanceEntry struct {
	Feature    string  `json:"feature" yaml:"feature"`
	Importance float64 `json:"importance" yaml:"importance"`
}

// ImportanceTable 按 importance 降序排列的特征重要性表，加载后不可变。
type ImportanceTable []ImportanceEntry

// NewImportanceTable 复制 entries 并按 importance 降序稳定排序。
func NewImportanceTable(entries []ImportanceEntry) ImportanceTable {
	t := make(ImportanceTable, len(entries))
	copy(t, entries)
	sort.SliceStable(t, func(i, j int) bool {
		return t[i].Importance > t[j].Importance
	})
	return t
}

// Top 返回前 n 行的副本；n 超过表长时返回全部，n <= 0 返回空。
func (t ImportanceTable) Top(n int) []ImportanceEntry {
	if n <= 0 {
		return []ImportanceEntry{}
	}
	if n > len(t) {
		n = len(t)
	}
	out := make([]ImportanceEntry, n)
	copy(out, t[:n])
	return out
}

// Features 返回前 n 个特征名
func (t ImportanceTable) Features(n int) []string {
	top := t.Top(n)
	names := make([]string, len(top))
	for i, e := range top {
		names[i] = e.Feature
	}
	return names
}
