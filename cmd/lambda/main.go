package main

import (
	"context"
	"log"
	"strings"
	"time"

	"topicgraph/infrastructure/config"
	"topicgraph/infrastructure/di"
	"topicgraph/interfaces/http/rest/middleware"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Global variables for Lambda lifecycle management
var (
	// chiLambda wraps the Chi router for AWS Lambda integration
	chiLambda *chiadapter.ChiLambdaV2

	// container holds the dependency injection container
	container *di.Container

	// coldStart tracks whether this is a cold start invocation
	coldStart = true

	// coldStartTime records when the cold start began
	coldStartTime time.Time
)

// init runs during cold start
func init() {
	coldStartTime = time.Now()
	log.Println("Lambda cold start initiated")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	timeout := time.Duration(cfg.ColdStartTimeout) * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// The cleanup func is dropped: the container lives as long as the sandbox
	container, _, err = di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	if err := container.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap topic engine: %v", err)
	}

	chiRouter, ok := container.Handler.(*chi.Mux)
	if !ok {
		log.Fatal("Failed to cast handler to chi.Mux")
	}
	chiLambda = chiadapter.NewV2(chiRouter)

	log.Printf("Lambda cold start completed in %v", time.Since(coldStartTime))
}

// Handler is the Lambda function handler. Each invocation ends with a save
// because the sandbox may be frozen or reclaimed between requests.
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	markGatewayAuthorized(&req)
	resp, err := chiLambda.ProxyWithContextV2(ctx, req)

	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	if coldStart {
		resp.Headers["X-Cold-Start"] = "true"
		resp.Headers["X-Cold-Start-Duration"] = time.Since(coldStartTime).String()
		coldStart = false
	} else {
		resp.Headers["X-Cold-Start"] = "false"
	}
	if req.RequestContext.RequestID != "" {
		resp.Headers["X-Lambda-Request-ID"] = req.RequestContext.RequestID
	}

	if req.RequestContext.HTTP.Method != "GET" {
		if saveErr := container.Engine.Save(ctx); saveErr != nil {
			container.Logger.Warn("Failed to save snapshot after request",
				zap.String("path", req.RequestContext.HTTP.Path),
				zap.Error(saveErr),
			)
		}
	}

	container.Logger.Info("Lambda response",
		zap.String("method", req.RequestContext.HTTP.Method),
		zap.String("path", req.RequestContext.HTTP.Path),
		zap.String("request_id", req.RequestContext.RequestID),
		zap.Int("status_code", resp.StatusCode),
	)

	return resp, err
}

// markGatewayAuthorized replaces any client-sent gateway headers with the
// subject from API Gateway's JWT authorizer, when it ran.
func markGatewayAuthorized(req *events.APIGatewayV2HTTPRequest) {
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	for k := range req.Headers {
		if strings.EqualFold(k, middleware.GatewayAuthorizedHeader) || strings.EqualFold(k, middleware.GatewaySubjectHeader) {
			delete(req.Headers, k)
		}
	}

	authorizer := req.RequestContext.Authorizer
	if authorizer == nil || authorizer.JWT == nil {
		return
	}
	if sub := authorizer.JWT.Claims["sub"]; sub != "" {
		req.Headers[middleware.GatewayAuthorizedHeader] = "true"
		req.Headers[middleware.GatewaySubjectHeader] = sub
	}
}

// main is the entry point for the Lambda function
func main() {
	lambda.Start(Handler)
}
