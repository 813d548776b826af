package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"strings"
)

// Executor runs one GraphQL query and returns its data object.
type Executor interface {
	Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error)
}

// PageInfo is the GraphQL connection cursor block.
type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

type connection struct {
	Nodes    []json.RawMessage `json:"nodes"`
	PageInfo PageInfo          `json:"pageInfo"`
}

// BuildRequest returns a copy of base with the after cursor set.
// An empty cursor is sent as null so the first page is requested.
func BuildRequest(base map[string]any, cursor string) map[string]any {
	variables := make(map[string]any, len(base)+1)
	maps.Copy(variables, base)
	if cursor == "" {
		variables["after"] = nil
	} else {
		variables["after"] = cursor
	}
	return variables
}

// Paginate walks a cursor-paginated connection found at resultPath in the query data.
// Pages are fetched lazily as the sequence is consumed; the first error ends the sequence.
func Paginate(ctx context.Context, executor Executor, query string, base map[string]any, resultPath ...string) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		if executor == nil {
			yield(nil, fmt.Errorf("graphql executor is required"))
			return
		}

		cursor := ""
		for {
			data, err := executor.Execute(ctx, query, BuildRequest(base, cursor))
			if err != nil {
				yield(nil, err)
				return
			}

			page, err := connectionAt(data, resultPath)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, node := range page.Nodes {
				if !yield(node, nil) {
					return
				}
			}

			if !page.PageInfo.HasNextPage {
				return
			}
			if page.PageInfo.EndCursor == nil || *page.PageInfo.EndCursor == "" {
				yield(nil, fmt.Errorf("connection %s reports another page without an end cursor", strings.Join(resultPath, ".")))
				return
			}
			cursor = *page.PageInfo.EndCursor
		}
	}
}

// Lookup walks path through a JSON object and returns the value found there.
func Lookup(data json.RawMessage, path ...string) (json.RawMessage, error) {
	current := data
	for i, segment := range path {
		var object map[string]json.RawMessage
		if err := json.Unmarshal(current, &object); err != nil || object == nil {
			return nil, fmt.Errorf("result path %s: not an object", strings.Join(path[:i], "."))
		}
		next, ok := object[segment]
		if !ok || !hasJSONValue(next) {
			return nil, fmt.Errorf("result path %s: missing", strings.Join(path[:i+1], "."))
		}
		current = next
	}
	return current, nil
}

func connectionAt(data json.RawMessage, path []string) (connection, error) {
	raw, err := Lookup(data, path...)
	if err != nil {
		return connection{}, err
	}
	var page connection
	if err := json.Unmarshal(raw, &page); err != nil {
		return connection{}, fmt.Errorf("decode connection %s: %w", strings.Join(path, "."), err)
	}
	return page, nil
}
