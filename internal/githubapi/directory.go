package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultTopRepoLimit caps the repositories scanned for given activity.
const DefaultTopRepoLimit = 30

const orgMembersQuery = `query($org:String!, $after:String){
  organization(login:$org){
    membersWithRole(first:100, after:$after){
      pageInfo{hasNextPage endCursor}
      nodes{ login }
    }
  }
}`

const topRepositoriesQuery = `query($org:String!){
  organization(login:$org){
    repositories(first:100, orderBy:{field:PUSHED_AT, direction:DESC}){
      nodes{ name nameWithOwner updatedAt }
    }
  }
}`

type loginNode struct {
	Login string `json:"login"`
}

type repositoryNode struct {
	Name string `json:"name"`
}

// ListOrgMembers returns the logins of every member of org.
func ListOrgMembers(ctx context.Context, executor Executor, org string) ([]string, error) {
	org = strings.TrimSpace(org)
	if org == "" {
		return nil, fmt.Errorf("org is required")
	}

	members := make([]string, 0)
	variables := map[string]any{"org": org}
	for node, err := range Paginate(ctx, executor, orgMembersQuery, variables, "organization", "membersWithRole") {
		if err != nil {
			return nil, fmt.Errorf("list members of %s: %w", org, err)
		}
		var member loginNode
		if err := json.Unmarshal(node, &member); err != nil {
			return nil, fmt.Errorf("decode member of %s: %w", org, err)
		}
		if member.Login == "" {
			continue
		}
		members = append(members, member.Login)
	}
	return members, nil
}

// TopRepositories returns up to limit repository names of org, most recently pushed first.
// A limit <= 0 uses DefaultTopRepoLimit.
func TopRepositories(ctx context.Context, executor Executor, org string, limit int) ([]string, error) {
	org = strings.TrimSpace(org)
	if org == "" {
		return nil, fmt.Errorf("org is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("graphql executor is required")
	}
	if limit <= 0 {
		limit = DefaultTopRepoLimit
	}

	data, err := executor.Execute(ctx, topRepositoriesQuery, map[string]any{"org": org})
	if err != nil {
		return nil, fmt.Errorf("list repositories of %s: %w", org, err)
	}
	raw, err := Lookup(data, "organization", "repositories", "nodes")
	if err != nil {
		return nil, fmt.Errorf("list repositories of %s: %w", org, err)
	}

	var nodes []repositoryNode
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, fmt.Errorf("decode repositories of %s: %w", org, err)
	}

	repos := make([]string, 0, min(limit, len(nodes)))
	for _, node := range nodes {
		if len(repos) == limit {
			break
		}
		if node.Name == "" {
			continue
		}
		repos = append(repos, node.Name)
	}
	return repos, nil
}
