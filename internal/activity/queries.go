package activity

import (
	"fmt"

	"github.com/cam3ron2/github-activity-report/internal/window"
)

const authoredPullRequestsQuery = `query($query:String!, $after:String){
  search(query:$query, type:ISSUE, first:100, after:$after){
    pageInfo { hasNextPage endCursor }
    nodes {
      ... on PullRequest {
        number
        repository { name }
        title state createdAt mergedAt additions deletions
        comments(first:100){ nodes{ author{login} createdAt } }
        reviews(first:100){ nodes{ author{login} createdAt body } }
      }
    }
  }
}`

const repositoryPullRequestsQuery = `query($query:String!, $after:String){
  search(query:$query, type:ISSUE, first:100, after:$after){
    pageInfo { hasNextPage endCursor }
    nodes {
      ... on PullRequest {
        number
        repository { name }
        author { login }
        createdAt
        comments(first:50){ nodes{ author{login} createdAt } }
        reviews(first:50){ nodes{ author{login} createdAt state } }
      }
    }
  }
}`

const reviewThreadsQuery = `query($org:String!, $repo:String!, $prNum:Int!){
  repository(owner:$org, name:$repo){
    pullRequest(number:$prNum){
      reviewThreads(first:50){
        nodes{
          comments(first:1){
            nodes{ id author { login } createdAt }
          }
        }
      }
    }
  }
}`

// AuthoredSearch is the search string for pull requests user opened in org.
func AuthoredSearch(org, user string, w window.Window) string {
	return fmt.Sprintf("org:%s author:%s is:pr%s", org, user, w.SearchPredicate())
}

// RepositorySearch is the search string for every pull request in org/repo.
func RepositorySearch(org, repo string, w window.Window) string {
	return fmt.Sprintf("org:%s repo:%s/%s is:pr%s", org, org, repo, w.SearchPredicate())
}

type actor struct {
	Login string `json:"login"`
}

type commentNode struct {
	ID        string `json:"id"`
	Author    *actor `json:"author"`
	CreatedAt string `json:"createdAt"`
}

type reviewNode struct {
	Author    *actor `json:"author"`
	CreatedAt string `json:"createdAt"`
	State     string `json:"state"`
}

type commentConnection struct {
	Nodes []commentNode `json:"nodes"`
}

type reviewConnection struct {
	Nodes []reviewNode `json:"nodes"`
}

type repositoryRef struct {
	Name string `json:"name"`
}

type authoredPullRequest struct {
	Number     int                `json:"number"`
	Repository *repositoryRef     `json:"repository"`
	CreatedAt  string             `json:"createdAt"`
	MergedAt   *string            `json:"mergedAt"`
	Additions  int                `json:"additions"`
	Deletions  int                `json:"deletions"`
	Comments   *commentConnection `json:"comments"`
	Reviews    *reviewConnection  `json:"reviews"`
}

type repositoryPullRequest struct {
	Number     *int               `json:"number"`
	Repository *repositoryRef     `json:"repository"`
	Author     *actor             `json:"author"`
	CreatedAt  string             `json:"createdAt"`
	Comments   *commentConnection `json:"comments"`
	Reviews    *reviewConnection  `json:"reviews"`
}

type reviewThread struct {
	Comments *commentConnection `json:"comments"`
}
