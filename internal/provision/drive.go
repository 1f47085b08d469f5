package provision

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/grixate/hunthelper/internal/config"
)

type DocumentKind string

const (
	KindFolder      DocumentKind = "folder"
	KindSpreadsheet DocumentKind = "spreadsheet"
)

func (k DocumentKind) MimeType() string {
	return "application/vnd.google-apps." + string(k)
}

// DriveService creates and renames files through the Drive v3 REST API.
type DriveService struct {
	apiBase    string
	tokens     *TokenSource
	httpClient *http.Client
}

func NewDriveService(cfg config.DriveConfig, tokens *TokenSource, httpClient *http.Client) *DriveService {
	return &DriveService{
		apiBase:    strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}
}

func (d *DriveService) bearer(ctx context.Context, req *http.Request) error {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (d *DriveService) CreateFile(ctx context.Context, kind DocumentKind, name, parentID string) (string, error) {
	payload := map[string]any{
		"name":     name,
		"mimeType": kind.MimeType(),
		"parents":  []string{parentID},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := doJSON(ctx, d.httpClient, "drive", http.MethodPost, d.apiBase+"/files", d.bearer, payload, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errors.New("drive response missing id")
	}
	return out.ID, nil
}

func (d *DriveService) RenameFile(ctx context.Context, fileID, name string) error {
	endpoint := d.apiBase + "/files/" + url.PathEscape(strings.TrimSpace(fileID))
	return doJSON(ctx, d.httpClient, "drive", http.MethodPatch, endpoint, d.bearer, map[string]any{"name": name}, nil)
}
