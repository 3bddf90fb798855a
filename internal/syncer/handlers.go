// Jervis - Multi-Source Connection Synchronization Service
// Copyright 2026 Jan Damek (JanDamek)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/JanDamek/jervis-sub013

package syncer

import (
	"github.com/JanDamek/jervis-sub013/internal/models"
	"github.com/JanDamek/jervis-sub013/internal/provider"
)

// IssueHandler polls bug-tracker issues ordered by updated-at.
type IssueHandler struct{}

func (IssueHandler) ID() string                    { return "bugtracker-issues" }
func (IssueHandler) Capability() models.Capability { return models.CapabilityBugtracker }
func (IssueHandler) CursorKind() CursorKind        { return CursorTimestamp }

func (IssueHandler) BuildQuery(filter models.ResourceFilter, cursor *models.Cursor) provider.Query {
	q := provider.Query{Filter: filter}
	if cursor != nil && cursor.LastTimestamp != nil {
		q.SinceTimestamp = cursor.LastTimestamp
	}
	return q
}

// WikiPageHandler polls wiki pages ordered by updated-at.
type WikiPageHandler struct{}

func (WikiPageHandler) ID() string                    { return "wiki-pages" }
func (WikiPageHandler) Capability() models.Capability { return models.CapabilityWiki }
func (WikiPageHandler) CursorKind() CursorKind        { return CursorTimestamp }

func (WikiPageHandler) BuildQuery(filter models.ResourceFilter, cursor *models.Cursor) provider.Query {
	q := provider.Query{Filter: filter}
	if cursor != nil && cursor.LastTimestamp != nil {
		q.SinceTimestamp = cursor.LastTimestamp
	}
	return q
}

// RepoFileHandler polls repository file changes from a sequence-numbered
// change feed.
type RepoFileHandler struct{}

func (RepoFileHandler) ID() string                    { return "repository-files" }
func (RepoFileHandler) Capability() models.Capability { return models.CapabilityRepository }
func (RepoFileHandler) CursorKind() CursorKind        { return CursorSequence }

func (RepoFileHandler) BuildQuery(filter models.ResourceFilter, cursor *models.Cursor) provider.Query {
	q := provider.Query{Filter: filter}
	if cursor != nil && cursor.LastSequence != nil {
		q.AfterSequence = cursor.LastSequence
	}
	return q
}

// MailMessageHandler polls mailbox messages ordered by their numeric UID.
type MailMessageHandler struct{}

func (MailMessageHandler) ID() string                    { return "mail-messages" }
func (MailMessageHandler) Capability() models.Capability { return models.CapabilityEmail }
func (MailMessageHandler) CursorKind() CursorKind        { return CursorNumericID }

func (MailMessageHandler) BuildQuery(filter models.ResourceFilter, cursor *models.Cursor) provider.Query {
	q := provider.Query{Filter: filter}
	if cursor != nil && cursor.LastNumericID != nil {
		q.AfterNumericID = cursor.LastNumericID
	}
	return q
}
