// Package pagination provides parallel batch fetching for paged Bungie
// endpoints.
//
// Paged Bungie responses (clan rosters, group searches) carry the total
// result count next to the first page. This package fetches the first
// page, derives the page count from it, and fetches the rest with a
// bounded number of requests in flight. Dispatch spacing stays with the
// client's rate limiter; overlapping requests only hide latency.
//
// Example usage:
//
//	members, err := pagination.FetchAll(ctx, pagination.DefaultConfig(),
//		func(ctx context.Context, page int) (pagination.Page[client.GroupMember], error) {
//			res, err := bungie.GetGroupMembers(ctx, groupID, page)
//			return pagination.Page[client.GroupMember]{Items: res.Results, TotalResults: res.TotalResults, HasMore: res.HasMore}, err
//		})
//
// When the total count is unknown, pages are fetched one after another
// until HasMore is false.
package pagination
