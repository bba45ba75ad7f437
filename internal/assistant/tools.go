package assistant

import (
	"encoding/json"
	"fmt"

	"github.com/kalambet/stylebot/internal/gpt"
	"github.com/kalambet/stylebot/internal/wardrobe"
)

const (
	toolLoadWardrobe = "load_wardrobe"
	toolAddItems     = "add_wardrobe_items"
)

func wardrobeTools() []gpt.Tool {
	return []gpt.Tool{
		{
			Name:        toolLoadWardrobe,
			Description: "Получает список вещей пользователя, сгруппированный по категориям.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        toolAddItems,
			Description: "Добавляет вещи в гардероб пользователя.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"items": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"type":  map[string]any{"type": "string", "description": "Категория вещи"},
								"name":  map[string]any{"type": "string", "description": "Название вещи"},
								"color": map[string]any{"type": "string", "description": "Цвет"},
								"size":  map[string]any{"type": "string", "description": "Размер"},
							},
							"required": []string{"type", "name"},
						},
					},
				},
				"required": []string{"items"},
			},
		},
	}
}

type addItemsArgs struct {
	Items []wardrobe.BulkItem `json:"items"`
}

func parseAddItemsArgs(raw string) ([]wardrobe.BulkItem, error) {
	var args addItemsArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decoding %s arguments: %w", toolAddItems, err)
	}
	if len(args.Items) == 0 {
		return nil, fmt.Errorf("%s: no items", toolAddItems)
	}
	return args.Items, nil
}
