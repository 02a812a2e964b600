// Package github implements a loader for files in a GitHub repository.
//
// The loader reads one repository at one branch. It lists the whole tree
// with the recursive Trees API and fetches the blob of every file that
// matches the configured patterns.
//
// # Authentication
//
// A personal access token is read from the environment variable named by
// github.token_env in config.toml (GITHUB_TOKEN by default). Public
// repositories can be read without a token at GitHub's unauthenticated
// limit of 60 requests per hour.
//
// # Configuration
//
// The loader accepts the following keys:
//
//   - owner, repo: the repository. Both fall back to a source URI of the
//     form https://github.com/{owner}/{repo}.
//
//   - branch: the branch to read. Default: the repository's default branch.
//
//   - path: only files below this directory.
//
//   - patterns: comma-separated glob patterns matched against the file name
//     and the full path. Default: "*.md,*.markdown,*.txt".
//
// # Rate Limiting
//
// Requests are throttled proactively with a token bucket (about 1.2 per
// second by default). The X-RateLimit-Remaining and X-RateLimit-Reset
// headers are tracked as well; once fewer than MinBuffer requests remain the
// client waits for the reset.
//
// # Document Structure
//
// Documents carry the file's web URL as URI:
//
//	https://github.com/{owner}/{repo}/blob/{branch}/{path}
//
// Binary files and files above 1MB are skipped. Files that disappear
// between listing and fetching are skipped as well. Any other error fails
// the load.
package github
