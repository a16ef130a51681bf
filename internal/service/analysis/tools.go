package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// initSupportTools assembles the tools exposed to the react agent. Today
// that is a single resource search used to surface support lines, coping
// articles, and similar material when the model decides to cite them.
func initSupportTools(ctx context.Context) []tool.BaseTool {
	var tools []tool.BaseTool
	if rs := initResourceSearch(ctx); rs != nil {
		tools = append(tools, rs)
	}
	return tools
}

type resourceSearchTool struct {
	google tool.InvokableTool
	duck   tool.InvokableTool
}

type resourceSearchParams struct {
	Query string `json:"query"`
}

func initResourceSearch(ctx context.Context) tool.InvokableTool {
	googleTool := initGoogleSearch(ctx)
	duckTool := initDuckDuckGo(ctx)
	if googleTool == nil && duckTool == nil {
		log.Printf("resource search tool disabled: no search providers available")
		return nil
	}

	rs := &resourceSearchTool{google: googleTool, duck: duckTool}
	info := &schema.ToolInfo{
		Name: "resource_search",
		Desc: "Search the web for mental health resources, support services, " +
			"and coping techniques; falls back to another provider if needed.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query describing the resource to find",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, rs.run)
}

func (t *resourceSearchTool) run(ctx context.Context, params *resourceSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}

	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	if t.google != nil {
		if result, err := t.google.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("google search failed: %v", err)
		}
	}
	if t.duck != nil {
		if result, err := t.duck.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("duckduckgo search failed: %v", err)
		}
	}
	return "", errors.New("no search provider succeeded")
}

func initDuckDuckGo(ctx context.Context) tool.InvokableTool {
	duckTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "resource_search_ddg",
		ToolDesc:   "DuckDuckGo search (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		log.Printf("duckduckgo search disabled: %v", err)
		return nil
	}
	return duckTool
}

func initGoogleSearch(ctx context.Context) tool.InvokableTool {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	engineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if apiKey == "" || engineID == "" {
		log.Printf("google search disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "resource_search_google",
		ToolDesc:       "Google search",
		APIKey:         apiKey,
		SearchEngineID: engineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		log.Printf("google search disabled: %v", err)
		return nil
	}
	return googleTool
}
