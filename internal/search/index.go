package search

import (
	"fmt"
	"sort"

	"github.com/rpattn/logbook/internal/domain"
)

// Index is a snapshot of the logbook tree.
type Index struct {
	byID     map[int64]domain.Logbook
	children map[int64][]int64
	roots    []int64
}

// NewIndex builds an index from a list of logbooks.
func NewIndex(logbooks []domain.Logbook) *Index {
	idx := &Index{
		byID:     make(map[int64]domain.Logbook, len(logbooks)),
		children: make(map[int64][]int64),
	}
	for _, logbook := range logbooks {
		idx.byID[logbook.ID] = logbook
		if logbook.ParentID == nil {
			idx.roots = append(idx.roots, logbook.ID)
			continue
		}
		idx.children[*logbook.ParentID] = append(idx.children[*logbook.ParentID], logbook.ID)
	}
	sort.Slice(idx.roots, func(i, j int) bool { return idx.roots[i] < idx.roots[j] })
	for parent := range idx.children {
		ids := idx.children[parent]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return idx
}

// Logbook returns the indexed logbook with id.
func (idx *Index) Logbook(id int64) (domain.Logbook, bool) {
	logbook, ok := idx.byID[id]
	return logbook, ok
}

// Schema returns the attribute schema of logbook id.
func (idx *Index) Schema(id int64) domain.AttributeSchema {
	return idx.byID[id].Attributes
}

// Scope returns the ids of root and, when descendants is set, every logbook
// below it. A nil root yields nil, meaning every logbook.
func (idx *Index) Scope(root *int64, descendants bool) ([]int64, error) {
	if root == nil {
		return nil, nil
	}
	if _, ok := idx.byID[*root]; !ok {
		return nil, domain.NewNotFound("logbook", *root)
	}
	if !descendants {
		return []int64{*root}, nil
	}
	return idx.Descendants(*root)
}

// Descendants returns root followed by all logbooks below it, breadth first.
func (idx *Index) Descendants(root int64) ([]int64, error) {
	visited := map[int64]bool{root: true}
	out := []int64{root}
	for queue := []int64{root}; len(queue) > 0; queue = queue[1:] {
		for _, child := range idx.children[queue[0]] {
			if visited[child] {
				return nil, fmt.Errorf("logbook %d reached twice below %d: %w", child, root, domain.ErrHierarchyCycle)
			}
			visited[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out, nil
}

// IsDescendant reports whether candidate is id itself or lies below it.
func (idx *Index) IsDescendant(id, candidate int64) (bool, error) {
	ids, err := idx.Descendants(id)
	if err != nil {
		return false, err
	}
	for _, d := range ids {
		if d == candidate {
			return true, nil
		}
	}
	return false, nil
}

// Ancestors returns the parent chain of id, outermost first.
func (idx *Index) Ancestors(id int64) ([]domain.Logbook, error) {
	logbook, ok := idx.byID[id]
	if !ok {
		return nil, domain.NewNotFound("logbook", id)
	}

	visited := map[int64]bool{id: true}
	var chain []domain.Logbook
	for logbook.ParentID != nil {
		parentID := *logbook.ParentID
		if visited[parentID] {
			return nil, fmt.Errorf("logbook %d is its own ancestor: %w", parentID, domain.ErrHierarchyCycle)
		}
		visited[parentID] = true

		parent, ok := idx.byID[parentID]
		if !ok {
			return nil, domain.NewNotFound("logbook", parentID)
		}
		chain = append(chain, parent)
		logbook = parent
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
