package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// About carries ingestion metadata for the display layer.
type About struct {
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords"`
	Sources     []string `json:"sources"`
}

// AggregateDocument is the artifact produced by one aggregation run.
type AggregateDocument struct {
	GeneratedAt time.Time `json:"generated_at"`
	About       About     `json:"about"`
	Feeds       Feeds     `json:"feeds"`
}

// FeedNode is either a source result (Result set) or a named group of
// nested nodes.
type FeedNode struct {
	Key      string
	Result   *SourceResult
	Children Feeds
}

// Feeds is an ordered feed-key mapping; JSON output keeps slice order.
type Feeds []FeedNode

// Lookup returns the result stored under group/key; group is empty for
// top-level sources.
func (f Feeds) Lookup(group, key string) *SourceResult {
	nodes := f
	if group != "" {
		parent := f.find(group)
		if parent == nil {
			return nil
		}
		nodes = parent.Children
	}
	node := nodes.find(key)
	if node == nil {
		return nil
	}
	return node.Result
}

// Walk visits every source result in order.
func (f Feeds) Walk(fn func(group, key string, result *SourceResult)) {
	for i := range f {
		node := &f[i]
		if node.Result != nil {
			fn("", node.Key, node.Result)
			continue
		}
		for j := range node.Children {
			child := &node.Children[j]
			if child.Result != nil {
				fn(node.Key, child.Key, child.Result)
			}
		}
	}
}

// Put stores result under group/key, creating the group node on first
// use. Existing keys keep their position.
func (f *Feeds) Put(group, key string, result *SourceResult) {
	nodes := f
	if group != "" {
		parent := f.find(group)
		if parent == nil {
			*f = append(*f, FeedNode{Key: group})
			parent = &(*f)[len(*f)-1]
		}
		nodes = &parent.Children
	}
	if node := nodes.find(key); node != nil {
		node.Result = result
		return
	}
	*nodes = append(*nodes, FeedNode{Key: key, Result: result})
}

func (f Feeds) find(key string) *FeedNode {
	for i := range f {
		if f[i].Key == key {
			return &f[i]
		}
	}
	return nil
}

// MarshalJSON writes the nodes as a JSON object in slice order.
func (f Feeds) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, node := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(node.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var value []byte
		if node.Result != nil {
			value, err = json.Marshal(node.Result)
		} else {
			value, err = json.Marshal(node.Children)
		}
		if err != nil {
			return nil, fmt.Errorf("marshal feed %s: %w", node.Key, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a feeds object preserving key order. An object with
// an "items" or "source_url" member is a source result, anything else is
// a group.
func (f *Feeds) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("feeds: expected object, got %v", tok)
	}

	var nodes Feeds
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("feeds: unexpected key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("feeds %s: %w", key, err)
		}

		node := FeedNode{Key: key}
		if isSourceResult(raw) {
			var result SourceResult
			if err := json.Unmarshal(raw, &result); err != nil {
				return fmt.Errorf("feeds %s: %w", key, err)
			}
			node.Result = &result
		} else if err := json.Unmarshal(raw, &node.Children); err != nil {
			return fmt.Errorf("feeds %s: %w", key, err)
		}
		nodes = append(nodes, node)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = nodes
	return nil
}

func isSourceResult(raw json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	_, hasItems := probe["items"]
	_, hasURL := probe["source_url"]
	return hasItems || hasURL
}
