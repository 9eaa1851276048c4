package importwizard

import (
	"fmt"
	"strings"

	"labelkit/backend/internal/domain"
)

// EventFromRequest decodes a client event. Committed and CommitFailed are
// produced by the server after it writes the drafts and are rejected here.
func EventFromRequest(req domain.ImportEventRequest) (Event, error) {
	switch strings.ToLower(strings.TrimSpace(req.Type)) {
	case "upload":
		return FileUploaded{FileName: req.FileName, Drafts: req.Drafts}, nil
	case "edit":
		return EditRequested{Index: req.Index}, nil
	case "save":
		if req.Draft == nil {
			return nil, fmt.Errorf("%w: save needs a draft", ErrInvalidDraft)
		}
		return DraftSaved{Draft: *req.Draft}, nil
	case "remove":
		return RowRemoved{Index: req.Index}, nil
	case "back":
		return BackRequested{}, nil
	case "confirm":
		return ConfirmRequested{}, nil
	case "reset":
		return Reset{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, req.Type)
	}
}
