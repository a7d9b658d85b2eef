package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/imroc/req/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	boxItemFields = "id,type,name,modified_at"
	boxPageLimit  = 1000
	boxUserAgent  = "boxsync"
)

type BoxClient struct {
	client *req.Client
}

type boxItemCollection struct {
	TotalCount int          `json:"total_count"`
	Entries    []SourceNode `json:"entries"`
	Offset     int          `json:"offset"`
	Limit      int          `json:"limit"`
}

type boxAPIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (e *boxAPIError) Error() string {
	return fmt.Sprintf("box api %d %s: %s (request %s)", e.Status, e.Code, e.Message, e.RequestID)
}

// NewBoxClient authenticates with client credentials against the enterprise
// and fails if no token can be obtained.
func NewBoxClient(ctx context.Context, cfg BoxConfig, debug bool) (*BoxClient, error) {
	ccg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
		EndpointParams: url.Values{
			"box_subject_type": {"enterprise"},
			"box_subject_id":   {cfg.EnterpriseID},
		},
	}
	tokens := ccg.TokenSource(ctx)
	if _, tokenErr := tokens.Token(); tokenErr != nil {
		return nil, fmt.Errorf("Failed to setup Box client: %w", tokenErr)
	}

	log.Info("Box client setup successful!")
	return newBoxClientWithTokens(cfg.APIURL, tokens, debug), nil
}

func newBoxClientWithTokens(baseURL string, tokens oauth2.TokenSource, debug bool) *BoxClient {
	// no client-wide timeout: Content bodies stream straight into the upload
	client := req.C().
		SetTimeout(0).
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetUserAgent(boxUserAgent).
		SetLogger(log.StandardLogger()).
		OnBeforeRequest(func(c *req.Client, r *req.Request) error {
			token, tokenErr := tokens.Token()
			if tokenErr != nil {
				return fmt.Errorf("box token: %w", tokenErr)
			}
			r.SetBearerAuthToken(token.AccessToken)
			return nil
		})
	if debug {
		client.EnableDebugLog()
	}

	return &BoxClient{client: client}
}

func (c *BoxClient) ListFolder(ctx context.Context, folderID string) ([]SourceNode, error) {
	nodes := make([]SourceNode, 0)
	offset := 0

	for {
		var page boxItemCollection
		var apiErr boxAPIError
		resp, reqErr := c.client.R().
			SetContext(ctx).
			SetPathParam("id", folderID).
			SetQueryParams(map[string]string{
				"fields": boxItemFields,
				"limit":  strconv.Itoa(boxPageLimit),
				"offset": strconv.Itoa(offset),
			}).
			SetSuccessResult(&page).
			SetErrorResult(&apiErr).
			Get("/folders/{id}/items")
		if err := checkBoxResponse(resp, reqErr, &apiErr); err != nil {
			return nil, fmt.Errorf("listing folder %s: %w", folderID, err)
		}

		nodes = append(nodes, page.Entries...)
		offset += len(page.Entries)
		if len(page.Entries) == 0 || offset >= page.TotalCount {
			break
		}
	}

	return nodes, nil
}

func (c *BoxClient) FileInfo(ctx context.Context, fileID string) (SourceNode, error) {
	var node SourceNode
	var apiErr boxAPIError
	resp, reqErr := c.client.R().
		SetContext(ctx).
		SetPathParam("id", fileID).
		SetQueryParam("fields", boxItemFields).
		SetSuccessResult(&node).
		SetErrorResult(&apiErr).
		Get("/files/{id}")
	if err := checkBoxResponse(resp, reqErr, &apiErr); err != nil {
		return node, fmt.Errorf("file info %s: %w", fileID, err)
	}

	return node, nil
}

// Content streams the file body. The caller closes it.
func (c *BoxClient) Content(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, reqErr := c.client.R().
		SetContext(ctx).
		SetPathParam("id", fileID).
		DisableAutoReadResponse().
		Get("/files/{id}/content")
	if reqErr != nil {
		return nil, fmt.Errorf("downloading file %s: %w", fileID, reqErr)
	}
	// Box answers 202 with Retry-After while a fresh upload is still being processed
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("downloading file %s: unexpected status %s (retry after %q)", fileID, resp.Status, resp.Header.Get("Retry-After"))
	}

	return resp.Body, nil
}

func checkBoxResponse(resp *req.Response, reqErr error, apiErr *boxAPIError) error {
	if reqErr != nil {
		return reqErr
	}
	if resp.IsErrorState() {
		if apiErr.Status == 0 {
			apiErr.Status = resp.StatusCode
		}
		return apiErr
	}
	return nil
}
