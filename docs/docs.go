// Package docs holds the OpenAPI document served at /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.HealthResponse"}}
                }
            }
        },
        "/health/ready": {
            "get": {
                "description": "Pings the database and Redis. Fails only when the database is unreachable.",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.ReadinessResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/server.ReadinessResponse"}}
                }
            }
        },
        "/users": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns every user, newest first. Requires the admin API key.",
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "List all users",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.UsersEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Creates an unverified account and emails a six-digit verification code.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Register a new user",
                "parameters": [
                    {"description": "Registration data", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.RegisterResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/users/verify": {
            "post": {
                "description": "Checks the verification code, activates the account and starts a session.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Verify an email address",
                "parameters": [
                    {"description": "Email and code", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.VerifyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.SessionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/users/resend-code": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Resend the verification code",
                "parameters": [
                    {"description": "Email", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.ResendCodeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.MessageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/users/session": {
            "post": {
                "description": "Checks credentials of a verified user and starts a session.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Log in",
                "parameters": [
                    {"description": "Credentials", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.SessionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "delete": {
                "description": "Clears the session cookie.",
                "tags": ["users"],
                "summary": "Log out",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/users/me": {
            "get": {
                "security": [{"SessionCookie": []}],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.UserEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/meals": {
            "get": {
                "security": [{"SessionCookie": []}],
                "description": "Returns the caller's meals, newest first.",
                "produces": ["application/json"],
                "tags": ["meals"],
                "summary": "List meals",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.MealsEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"SessionCookie": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["meals"],
                "summary": "Log a meal",
                "parameters": [
                    {"description": "Meal", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.CreateMealRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.MealEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/meals/{id}": {
            "get": {
                "security": [{"SessionCookie": []}],
                "produces": ["application/json"],
                "tags": ["meals"],
                "summary": "Get a meal",
                "parameters": [
                    {"type": "string", "description": "Meal ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.MealEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"SessionCookie": []}],
                "description": "Updates only the supplied fields. An empty body returns the meal unchanged.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["meals"],
                "summary": "Update a meal",
                "parameters": [
                    {"type": "string", "description": "Meal ID", "name": "id", "in": "path", "required": true},
                    {"description": "Fields to change", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/models.UpdateMealRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.MealEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"SessionCookie": []}],
                "tags": ["meals"],
                "summary": "Delete a meal",
                "parameters": [
                    {"type": "string", "description": "Meal ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "security": [{"SessionCookie": []}],
                "description": "Totals and the best on-diet streak over the caller's meals in creation order.",
                "produces": ["application/json"],
                "tags": ["metrics"],
                "summary": "Diet metrics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.MetricsEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"},
                "message": {"type": "string"},
                "details": {"type": "string"}
            }
        },
        "models.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"},
                "uptime": {"type": "string"}
            }
        },
        "server.ReadinessResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "checks": {"type": "object", "additionalProperties": {"type": "string"}},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        },
        "models.RegisterRequest": {
            "type": "object",
            "required": ["name", "email", "password"],
            "properties": {
                "name": {"type": "string", "minLength": 3, "maxLength": 255},
                "email": {"type": "string", "format": "email"},
                "password": {"type": "string", "minLength": 6, "maxLength": 72, "description": "At most 72 bytes once UTF-8 encoded"}
            }
        },
        "models.VerifyRequest": {
            "type": "object",
            "required": ["email", "code"],
            "properties": {
                "email": {"type": "string", "format": "email"},
                "code": {"type": "string", "minLength": 6, "maxLength": 6}
            }
        },
        "models.ResendCodeRequest": {
            "type": "object",
            "required": ["email"],
            "properties": {
                "email": {"type": "string", "format": "email"}
            }
        },
        "models.LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string", "format": "email"},
                "password": {"type": "string", "minLength": 6}
            }
        },
        "models.RegisterResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "email": {"type": "string"}
            }
        },
        "models.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        },
        "models.UserResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "name": {"type": "string"},
                "email": {"type": "string"},
                "emailVerified": {"type": "boolean"},
                "createdAt": {"type": "string", "format": "date-time"},
                "updatedAt": {"type": "string", "format": "date-time"}
            }
        },
        "models.UserEnvelope": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/models.UserResponse"}
            }
        },
        "models.UsersEnvelope": {
            "type": "object",
            "properties": {
                "users": {"type": "array", "items": {"$ref": "#/definitions/models.UserResponse"}}
            }
        },
        "models.SessionResponse": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/models.UserResponse"},
                "sessionId": {"type": "string"}
            }
        },
        "models.CreateMealRequest": {
            "type": "object",
            "required": ["name", "date", "isOnDiet"],
            "properties": {
                "name": {"type": "string", "maxLength": 255},
                "description": {"type": "string", "maxLength": 2000},
                "date": {"type": "string", "format": "date-time"},
                "isOnDiet": {"type": "boolean"}
            }
        },
        "models.UpdateMealRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "maxLength": 255},
                "description": {"type": "string", "maxLength": 2000},
                "date": {"type": "string", "format": "date-time"},
                "isOnDiet": {"type": "boolean"}
            }
        },
        "models.MealResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "name": {"type": "string"},
                "description": {"type": "string"},
                "date": {"type": "string", "format": "date-time"},
                "isOnDiet": {"type": "boolean"},
                "userId": {"type": "string", "format": "uuid"},
                "createdAt": {"type": "string", "format": "date-time"},
                "updatedAt": {"type": "string", "format": "date-time"}
            }
        },
        "models.MealEnvelope": {
            "type": "object",
            "properties": {
                "meal": {"$ref": "#/definitions/models.MealResponse"}
            }
        },
        "models.MealsEnvelope": {
            "type": "object",
            "properties": {
                "meals": {"type": "array", "items": {"$ref": "#/definitions/models.MealResponse"}}
            }
        },
        "models.DietMetrics": {
            "type": "object",
            "properties": {
                "totalMeals": {"type": "integer"},
                "mealsOnDiet": {"type": "integer"},
                "mealsOffDiet": {"type": "integer"},
                "bestStreak": {"type": "integer"}
            }
        },
        "models.MetricsEnvelope": {
            "type": "object",
            "properties": {
                "metrics": {"$ref": "#/definitions/models.DietMetrics"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "x-api-key",
            "in": "header"
        },
        "SessionCookie": {
            "type": "apiKey",
            "name": "sessionId",
            "in": "cookie"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:3002",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "dietlog API",
	Description:      "Meal logging API with email-verified accounts and diet metrics",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
