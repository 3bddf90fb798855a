// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package models

import "time"

// Item is a discovered provider document. One concrete variant exists per
// capability; the interface is deliberately one level deep with no further
// inheritance. Providers return fully detailed payloads so downstream
// processing never needs a second round-trip.
type Item interface {
	// Capability identifies the provider family the item belongs to.
	Capability() Capability

	// ExternalKey is the provider-native identity of the item, unique
	// within one connection (issue key, page id, file path, message id).
	ExternalKey() string

	// Ordinal is the comparable updated-at position of the item:
	// milliseconds for time-ordered providers, a sequence or numeric id
	// otherwise. Cursor advancement uses the maximum ordinal observed.
	Ordinal() int64
}

// IssueItem is a bug-tracker issue with its full detail payload.
type IssueItem struct {
	Key         string    `json:"key"`
	Project     string    `json:"project"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Assignee    string    `json:"assignee,omitempty"`
	Labels      []string  `json:"labels,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (i IssueItem) Capability() Capability { return CapabilityBugtracker }
func (i IssueItem) ExternalKey() string    { return i.Key }
func (i IssueItem) Ordinal() int64         { return i.UpdatedAt.UnixMilli() }

// WikiPageItem is a wiki page with its full body.
type WikiPageItem struct {
	PageID    string    `json:"page_id"`
	Space     string    `json:"space"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w WikiPageItem) Capability() Capability { return CapabilityWiki }
func (w WikiPageItem) ExternalKey() string    { return w.PageID }
func (w WikiPageItem) Ordinal() int64         { return w.UpdatedAt.UnixMilli() }

// RepoFileItem is a repository file snapshot at a change-feed position.
// ChangeSeq is the provider's monotonically increasing change sequence,
// which also serves as the item ordinal.
type RepoFileItem struct {
	Repository string `json:"repository"`
	Path       string `json:"path"`
	Ref        string `json:"ref"`
	BlobSHA    string `json:"blob_sha"`
	Content    string `json:"content,omitempty"`
	ChangeSeq  int64  `json:"change_seq"`
}

func (r RepoFileItem) Capability() Capability { return CapabilityRepository }
func (r RepoFileItem) ExternalKey() string    { return r.Repository + "/" + r.Path }
func (r RepoFileItem) Ordinal() int64         { return r.ChangeSeq }

// MailMessageItem is a mailbox message. UID is the provider's numeric
// message id, increasing within one mailbox, and serves as the ordinal.
type MailMessageItem struct {
	MessageID  string    `json:"message_id"`
	Mailbox    string    `json:"mailbox"`
	UID        int64     `json:"uid"`
	From       string    `json:"from"`
	To         []string  `json:"to,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

func (m MailMessageItem) Capability() Capability { return CapabilityEmail }
func (m MailMessageItem) ExternalKey() string    { return m.MessageID }
func (m MailMessageItem) Ordinal() int64         { return m.UID }
