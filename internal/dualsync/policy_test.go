package dualsync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hepwiki/wikibot/internal/vcs"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		facts Facts
		want  Action
	}{
		{
			name:  "added asset is copied",
			facts: Facts{Kind: vcs.Added},
			want:  Action{OpCopy, DirectCopied},
		},
		{
			name:  "added page with bot-authored sibling is translated",
			facts: Facts{Kind: vcs.Added, Document: true, SiblingExists: true, SiblingByBot: true},
			want:  Action{OpTranslate, AutoTranslated},
		},
		{
			name:  "added page without sibling is left alone",
			facts: Facts{Kind: vcs.Added, Document: true},
			want:  Action{OpNone, NoAction},
		},
		{
			name:  "added page with human sibling is left alone",
			facts: Facts{Kind: vcs.Added, Document: true, SiblingExists: true},
			want:  Action{OpNone, NoAction},
		},
		{
			name:  "modified asset overwrites sibling",
			facts: Facts{Kind: vcs.Modified, SiblingExists: true},
			want:  Action{OpCopy, DirectCopied},
		},
		{
			name:  "modified page with missing sibling",
			facts: Facts{Kind: vcs.Modified, Document: true},
			want:  Action{OpIntegrity, IntegrityFailure},
		},
		{
			name:  "modified page that was moved away",
			facts: Facts{Kind: vcs.Modified, Document: true, SiblingExists: true, MovedAway: true, SiblingByBot: true},
			want:  Action{OpNone, Skipped},
		},
		{
			name:  "modified page with untouched bot sibling",
			facts: Facts{Kind: vcs.Modified, Document: true, SiblingExists: true, SiblingByBot: true},
			want:  Action{OpTranslate, AutoTranslated},
		},
		{
			name:  "modified page with untouched human sibling",
			facts: Facts{Kind: vcs.Modified, Document: true, SiblingExists: true},
			want:  Action{OpNone, ManualTranslationNeeded},
		},
		{
			name:  "modified page with sibling edited in the same range",
			facts: Facts{Kind: vcs.Modified, Document: true, SiblingExists: true, SiblingTouched: true, SiblingByBot: true},
			want:  Action{OpNone, NoAction},
		},
		{
			name:  "exact rename moves sibling",
			facts: Facts{Kind: vcs.Renamed, Similarity: 100, Document: true, SiblingExists: true},
			want:  Action{OpRelocate, Moved},
		},
		{
			name:  "exact copy of an asset",
			facts: Facts{Kind: vcs.Copied, Similarity: 100, SiblingExists: true},
			want:  Action{OpRelocate, Moved},
		},
		{
			name:  "exact rename without sibling",
			facts: Facts{Kind: vcs.Renamed, Similarity: 100, Document: true},
			want:  Action{OpNone, NoAction},
		},
		{
			name:  "partial rename of an asset",
			facts: Facts{Kind: vcs.Renamed, Similarity: 80, SiblingExists: true},
			want:  Action{OpCopy, DirectCopied},
		},
		{
			name:  "partial rename of a page with bot sibling",
			facts: Facts{Kind: vcs.Renamed, Similarity: 75, Document: true, SiblingExists: true, SiblingByBot: true},
			want:  Action{OpTranslateRelocated, AutoTranslated},
		},
		{
			name:  "partial copy of a page with human sibling",
			facts: Facts{Kind: vcs.Copied, Similarity: 60, Document: true, SiblingExists: true},
			want:  Action{OpRelocate, ManualTranslationNeeded},
		},
		{
			name:  "deleted file removes sibling",
			facts: Facts{Kind: vcs.Deleted, SiblingExists: true},
			want:  Action{OpRemove, Removed},
		},
		{
			name:  "deleted origin of a rename",
			facts: Facts{Kind: vcs.Deleted, SiblingExists: true, MovedAway: true},
			want:  Action{OpNone, Skipped},
		},
		{
			name:  "deleted file without sibling",
			facts: Facts{Kind: vcs.Deleted},
			want:  Action{OpNone, NoAction},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.facts))
		})
	}
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "translate-relocated", OpTranslateRelocated.String())
	assert.Equal(t, "op(42)", Op(42).String())
}
