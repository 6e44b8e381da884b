package model

import "time"

// Feed はユーザーが作成するタグ/配信元の絞り込み条件。
type Feed struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	TagIDs       []int64   `json:"tagIds"`
	PublisherIDs []int64   `json:"publisherIds"`
	UserID       int       `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FeedInput はフィード作成・更新の入力。
type FeedInput struct {
	Name         string
	Description  string
	TagIDs       []int64
	PublisherIDs []int64
}

// FollowedFeed はユーザーのフィードフォローと最終訪問日時。
type FollowedFeed struct {
	ID        int
	UserID    int
	FeedID    int
	LastVisit time.Time
	CreatedAt time.Time
}

// FollowedFeedSummary はフォロー中フィードと最終訪問以降の新着記事数。
type FollowedFeedSummary struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	NewArticlesCount int    `json:"newArticlesCount"`
}
