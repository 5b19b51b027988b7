package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
)

// Usage: API_TOKEN=<jwt> go run scripts/test_ai_api.go <image> [query]
var baseURL = envOr("API_BASE_URL", "http://localhost:3000/api")

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Pretty print JSON helper
func prettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(b))
}

// Request helper
func sendRequest(method, url, token, contentType string, body io.Reader) (*http.Response, []byte, error) {
	req, err := http.NewRequest(method, baseURL+url, body)
	if err != nil {
		return nil, nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp, respBody, err
}

func upload(token, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	resp, body, err := sendRequest("POST", "/item/v1", token, w.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	color.Green("Status: %s", resp.Status)
	var out struct {
		Data struct {
			Id string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Data.Id == "" {
		return "", fmt.Errorf("unexpected upload response: %s", body)
	}
	return out.Data.Id, nil
}

func main() {
	if len(os.Args) < 2 {
		color.Red("usage: go run scripts/test_ai_api.go <image> [query]")
		os.Exit(2)
	}
	token := os.Getenv("API_TOKEN")
	if token == "" {
		color.Red("API_TOKEN is not set")
		os.Exit(2)
	}
	query := "what is in this picture?"
	if len(os.Args) > 2 {
		query = os.Args[2]
	}

	color.Cyan("🚀 Starting Visual Search Pipeline API Test\n")

	// 1. Upload
	color.Yellow("\n1. Upload %s", os.Args[1])
	itemID, err := upload(token, os.Args[1])
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Item ID: %s\n", itemID)

	// 2. Wait for the pipeline to finish
	color.Yellow("\n2. Waiting for analysis and embedding")
	deadline := time.Now().Add(3 * time.Minute)
	var item map[string]interface{}
	for time.Now().Before(deadline) {
		_, body, err := sendRequest("GET", "/item/v1/"+itemID, token, "", nil)
		if err != nil {
			color.Red("Failed: %v", err)
			os.Exit(1)
		}
		var show struct {
			Data map[string]interface{} `json:"data"`
		}
		_ = json.Unmarshal(body, &show)
		item = show.Data
		if analyses, ok := item["analyses"].([]interface{}); ok && len(analyses) > 0 {
			if latest, ok := analyses[0].(map[string]interface{}); ok && latest["embedded"] == true {
				break
			}
		}
		time.Sleep(2 * time.Second)
	}
	prettyPrint(item)

	// 3. Search every mode
	for _, mode := range []string{"keyword", "vector", "hybrid", "adaptive"} {
		color.Yellow("\n3. Search (%s): %q", mode, query)
		payload, _ := json.Marshal(map[string]interface{}{
			"query":          query,
			"mode":           mode,
			"top_k":          5,
			"include_answer": mode == "adaptive",
		})
		resp, body, err := sendRequest("POST", "/search/v1", token, "application/json", bytes.NewReader(payload))
		if err != nil {
			color.Red("Failed: %v", err)
			continue
		}
		color.Green("Status: %s", resp.Status)
		var res map[string]interface{}
		_ = json.Unmarshal(body, &res)
		prettyPrint(res)
	}

	// 4. Cleanup
	color.Yellow("\n4. Cleanup: Delete item")
	resp, _, err := sendRequest("DELETE", "/item/v1/"+itemID, token, "", nil)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
}
