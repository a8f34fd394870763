// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/prices": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Prices"],
                "summary": "Get multiple prices",
                "parameters": [
                    {"type": "string", "description": "Comma separated symbols", "name": "symbols", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"$ref": "#/definitions/models.PriceQuote"}}},
                    "400": {"description": "No symbols"}
                }
            }
        },
        "/prices/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Prices"],
                "summary": "Price provider status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ServiceStatus"}}}
            }
        },
        "/prices/{symbol}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Prices"],
                "summary": "Get current price",
                "parameters": [
                    {"type": "string", "description": "Symbol, e.g. BTC", "name": "symbol", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PriceQuote"}}}
            }
        },
        "/feed/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Feed"],
                "summary": "Upstream feed status",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/hub/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Feed"],
                "summary": "Websocket hub status",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/copy-trades": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["CopyTrading"],
                "summary": "List active copy trade subscriptions",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["CopyTrading"],
                "summary": "Follow a trader",
                "parameters": [
                    {"description": "Copy settings", "name": "subscription", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.CopyTradeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Invalid JSON or parameters"},
                    "401": {"description": "Unauthorized"},
                    "409": {"description": "Already following"}
                }
            }
        },
        "/copy-trades/{traderId}": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["CopyTrading"],
                "summary": "Update copy settings",
                "parameters": [
                    {"type": "string", "description": "Trader ID", "name": "traderId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not following"}}
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["CopyTrading"],
                "summary": "Unfollow a trader",
                "parameters": [
                    {"type": "string", "description": "Trader ID", "name": "traderId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not following"}}
            }
        },
        "/portfolio": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["CopyTrading"],
                "summary": "Get portfolio",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "api.CopyTradeRequest": {
            "type": "object",
            "required": ["trader_id"],
            "properties": {
                "trader_id": {"type": "string", "example": "trader-42"},
                "amount": {"type": "number", "example": 1000},
                "max_trade_size": {"type": "number", "example": 500},
                "stop_loss_pct": {"type": "number", "example": 5},
                "take_profit_pct": {"type": "number", "example": 10},
                "daily_loss_limit": {"type": "number", "example": 100}
            }
        },
        "models.PriceQuote": {
            "type": "object",
            "properties": {
                "symbol": {"type": "string"},
                "price": {"type": "number"},
                "change24h": {"type": "number"},
                "volume24h": {"type": "number"},
                "marketCap": {"type": "number"},
                "lastUpdated": {"type": "string"},
                "source": {"type": "string"}
            }
        },
        "models.ServiceStatus": {
            "type": "object",
            "properties": {
                "providers": {"type": "object", "additionalProperties": {"type": "boolean"}},
                "fallback": {"type": "boolean"},
                "checkedAt": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Copy Signal API",
	Description:      "Copy trading signal hub: follower settings, prices and feed status.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
