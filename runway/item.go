package runway

import "fmt"

const untitledCategory = "Untitled"

// Item is a runway image discovered on the wiki.
type Item struct {
	Title    string
	URL      string
	Queen    string
	Category string
}

// Group is the set of items posted into one thread.
type Group struct {
	Category string
	Items    []Item
}

// Unique drops items whose URL repeats an earlier item's URL.
func Unique(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.URL]; ok {
			continue
		}
		seen[it.URL] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Diff returns the items whose URL is not in cached, in their original order.
func Diff(cached map[string]struct{}, items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if _, ok := cached[it.URL]; ok {
			continue
		}
		out = append(out, it)
	}
	return out
}

// GroupByCategory partitions items by category. Groups appear in the order
// their category was first seen.
func GroupByCategory(items []Item) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, it := range items {
		i, ok := index[it.Category]
		if !ok {
			i = len(groups)
			index[it.Category] = i
			groups = append(groups, Group{Category: it.Category})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}

// ThreadTitle is the title of the thread created for a category.
func ThreadTitle(category string, season int) string {
	if category == "" {
		category = untitledCategory
	}
	return fmt.Sprintf("%s (Season %d)", category, season)
}
