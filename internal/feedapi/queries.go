package feedapi

// Operation names sent with each document
const (
	opFeed         = "Feed"
	opPublicFeed   = "PublicFeed"
	opMyTeams      = "MyTeams"
	opBlockedUsers = "BlockedUsers"
)

const feedQuery = `query Feed($filter: FeedFilterInput!) {
  feed(filter: $filter) {
    posts {
      id
      authorId
      authorName
      teamId
      content
      createdAt
      viewCount
      likeCount
      commentCount
      isLiked
      isBookmarked
      tags
      media {
        url
        type
        thumbnailUrl
      }
    }
    hasNext
    page
    nextCursor
    myTeams {
      teamId
      teamName
    }
    blockedUsers
  }
}
`

// publicFeedQuery never selects viewer data
const publicFeedQuery = `query PublicFeed($filter: FeedFilterInput!) {
  feed(filter: $filter) {
    posts {
      id
      authorId
      authorName
      teamId
      content
      createdAt
      viewCount
      likeCount
      commentCount
      tags
      media {
        url
        type
        thumbnailUrl
      }
    }
    hasNext
    page
    nextCursor
  }
}
`

const myTeamsQuery = `query MyTeams {
  myTeams {
    teamId
    teamName
  }
}
`

const blockedUsersQuery = `query BlockedUsers {
  blockedUsers
}
`
