package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CutReview API",
        "description": "Review and revision rounds for video and image deliverables",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Authentication",
            "description": "Identity of the caller"
        },
        {
            "name": "Projects",
            "description": "Editor project management"
        },
        {
            "name": "Tracks",
            "description": "Editor round workflow"
        },
        {
            "name": "Review",
            "description": "Client review page"
        }
    ],
    "paths": {
        "/auth/me": {
            "get": {
                "tags": [
                    "Authentication"
                ],
                "summary": "Current identity",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/projects": {
            "post": {
                "tags": [
                    "Projects"
                ],
                "summary": "Create project with round 1",
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateProjectRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/projects/{id}/password": {
            "put": {
                "tags": [
                    "Projects"
                ],
                "summary": "Set or clear the project password",
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SetPasswordRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/projects/{id}/tracks": {
            "get": {
                "tags": [
                    "Projects"
                ],
                "summary": "List rounds",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/projects/{id}/verify-password": {
            "post": {
                "tags": [
                    "Review"
                ],
                "summary": "Unlock a protected project",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/VerifyPasswordRequest"
                        }
                    }
                ]
            }
        },
        "/projects/{id}/tracks/{trackId}": {
            "get": {
                "tags": [
                    "Review"
                ],
                "summary": "Review page of a round",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "trackId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "X-Project-Access",
                        "in": "header",
                        "type": "string",
                        "required": false,
                        "description": "Access proof for protected projects"
                    }
                ]
            }
        },
        "/projects/{id}/tracks/{trackId}/comments": {
            "get": {
                "tags": [
                    "Review"
                ],
                "summary": "List comments",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "trackId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "X-Project-Access",
                        "in": "header",
                        "type": "string",
                        "required": false,
                        "description": "Access proof for protected projects"
                    }
                ]
            },
            "post": {
                "tags": [
                    "Review"
                ],
                "summary": "Add a comment",
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "trackId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "X-Project-Access",
                        "in": "header",
                        "type": "string",
                        "required": false,
                        "description": "Access proof for protected projects"
                    },
                    {
                        "name": "payload",
                        "in": "formData",
                        "type": "string",
                        "required": false,
                        "description": "CreateCommentRequest as JSON"
                    },
                    {
                        "name": "images",
                        "in": "formData",
                        "type": "file",
                        "required": false
                    }
                ],
                "consumes": [
                    "application/json",
                    "multipart/form-data"
                ]
            }
        },
        "/projects/{id}/tracks/{trackId}/comments/{commentId}": {
            "patch": {
                "tags": [
                    "Review"
                ],
                "summary": "Edit own comment",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "trackId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "commentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "X-Project-Access",
                        "in": "header",
                        "type": "string",
                        "required": false,
                        "description": "Access proof for protected projects"
                    },
                    {
                        "name": "payload",
                        "in": "formData",
                        "type": "string",
                        "required": false,
                        "description": "UpdateCommentRequest as JSON"
                    },
                    {
                        "name": "images",
                        "in": "formData",
                        "type": "file",
                        "required": false
                    }
                ],
                "consumes": [
                    "application/json",
                    "multipart/form-data"
                ]
            },
            "delete": {
                "tags": [
                    "Review"
                ],
                "summary": "Delete own comment",
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "trackId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "commentId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "X-Project-Access",
                        "in": "header",
                        "type": "string",
                        "required": false,
                        "description": "Access proof for protected projects"
                    }
                ]
            }
        },
        "/projects/{id}/tracks/{trackId}/request-revisions": {
            "post": {
                "tags": [
                    "Review"
                ],
                "summary": "Request another round",
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "trackId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "X-Project-Access",
                        "in": "header",
                        "type": "string",
                        "required": false,
                        "description": "Access proof for protected projects"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RoundDecisionRequest"
                        }
                    }
                ]
            }
        },
        "/projects/{id}/tracks/{trackId}/approve": {
            "post": {
                "tags": [
                    "Review"
                ],
                "summary": "Approve the round",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "trackId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "X-Project-Access",
                        "in": "header",
                        "type": "string",
                        "required": false,
                        "description": "Access proof for protected projects"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RoundDecisionRequest"
                        }
                    }
                ]
            }
        },
        "/tracks/{trackId}/deliver": {
            "post": {
                "tags": [
                    "Tracks"
                ],
                "summary": "Deliver a round",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "trackId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/DeliverRoundRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/tracks/{trackId}/steps/{index}/status": {
            "patch": {
                "tags": [
                    "Tracks"
                ],
                "summary": "Toggle one step",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "trackId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "index",
                        "in": "path",
                        "type": "integer",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SetStepStatusRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/tracks/{trackId}/steps": {
            "put": {
                "tags": [
                    "Tracks"
                ],
                "summary": "Replace the steps of a round",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "trackId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RestructureStepsRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/tracks/{trackId}/steps/content": {
            "post": {
                "tags": [
                    "Tracks"
                ],
                "summary": "Bulk edit step content",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "description": "Image files are sent as images_<index>",
                "parameters": [
                    {
                        "name": "trackId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "formData",
                        "type": "string",
                        "required": true,
                        "description": "UpdateStepContentRequest as JSON"
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "consumes": [
                    "multipart/form-data"
                ]
            }
        },
        "/tracks/{trackId}/export": {
            "get": {
                "tags": [
                    "Tracks"
                ],
                "summary": "Export round feedback",
                "produces": [
                    "text/csv",
                    "application/pdf"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "trackId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "format",
                        "in": "query",
                        "type": "string",
                        "enum": [
                            "csv",
                            "pdf"
                        ],
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "File"
                    }
                }
            }
        }
    },
    "definitions": {
        "FeedbackItem": {
            "type": "object",
            "required": [
                "text"
            ],
            "properties": {
                "text": {
                    "type": "string"
                },
                "timestamp": {
                    "type": "number"
                },
                "images": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "CreateProjectRequest": {
            "type": "object",
            "required": [
                "title",
                "client_name"
            ],
            "properties": {
                "title": {
                    "type": "string"
                },
                "client_name": {
                    "type": "string"
                },
                "client_email": {
                    "type": "string"
                },
                "deadline": {
                    "type": "string",
                    "format": "date-time"
                },
                "password": {
                    "type": "string"
                },
                "feedback_items": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/FeedbackItem"
                    }
                }
            }
        },
        "SetPasswordRequest": {
            "type": "object",
            "properties": {
                "password": {
                    "type": "string",
                    "x-nullable": true
                }
            }
        },
        "VerifyPasswordRequest": {
            "type": "object",
            "required": [
                "password"
            ],
            "properties": {
                "password": {
                    "type": "string"
                }
            }
        },
        "DeliverRoundRequest": {
            "type": "object",
            "required": [
                "version",
                "deliverable_link",
                "media_type"
            ],
            "properties": {
                "version": {
                    "type": "integer"
                },
                "items": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/FeedbackItem"
                    }
                },
                "deliverable_link": {
                    "type": "string"
                },
                "media_type": {
                    "type": "string",
                    "enum": [
                        "video",
                        "image"
                    ]
                }
            }
        },
        "SetStepStatusRequest": {
            "type": "object",
            "required": [
                "version",
                "status"
            ],
            "properties": {
                "version": {
                    "type": "integer"
                },
                "status": {
                    "type": "string",
                    "enum": [
                        "pending",
                        "completed"
                    ]
                },
                "deliverable_link": {
                    "type": "string"
                },
                "media_type": {
                    "type": "string",
                    "enum": [
                        "video",
                        "image"
                    ]
                }
            }
        },
        "RestructureStepsRequest": {
            "type": "object",
            "required": [
                "version"
            ],
            "properties": {
                "version": {
                    "type": "integer"
                },
                "steps": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "comment_id": {
                                "type": "string"
                            },
                            "name": {
                                "type": "string"
                            },
                            "type": {
                                "type": "string",
                                "enum": [
                                    "comment",
                                    "general_revision"
                                ]
                            },
                            "text": {
                                "type": "string"
                            },
                            "timestamp": {
                                "type": "number"
                            },
                            "images": {
                                "type": "array",
                                "items": {
                                    "type": "string"
                                }
                            }
                        }
                    }
                }
            }
        },
        "RoundDecisionRequest": {
            "type": "object",
            "required": [
                "version"
            ],
            "properties": {
                "version": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                },
                "details": {
                    "type": "object"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "meta": {
                    "type": "object"
                }
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
