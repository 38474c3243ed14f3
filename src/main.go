package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"olympia/src/boot"
	"olympia/src/common"
	"olympia/src/config"
	"olympia/src/lib"
	"olympia/src/middlewares"
	"olympia/src/utils"
	"os"
	"os/signal"
	"path"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/covalenthq/lumberjack"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	apiPrefix string = "/api/v1"
)

type services struct {
	redemption     *common.RedemptionService
	inventory      *common.InventoryService
	reconciliation *common.ReconciliationService
	verify         *common.VerifyService
	audit          common.AuditSink
	rd             *redis.Client
}

var svc *services

func newServices(d *gorm.DB, rd *redis.Client, media common.MediaStore) *services {
	verify := common.NewVerifyService(d, rd)
	rec := common.NewReconciliationService(d, common.DefaultIssueAlerters())
	audit := common.NewDBAuditSink(d)
	return &services{
		redemption:     common.NewRedemptionService(d, media, audit, common.DefaultNotifiers(verify)),
		inventory:      common.NewInventoryService(d, rec),
		reconciliation: rec,
		verify:         verify,
		audit:          audit,
		rd:             rd,
	}
}

var redemptionCodeValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	code, ok := fl.Field().Interface().(string)
	return ok && utils.IsRedemptionCode(code)
}

func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("redemptioncode", redemptionCodeValidatorFunc)
	}
}

func setupRouter() *gin.Engine {
	router := gin.Default()
	router.Use(middlewares.SecureHeaders)
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func maintenanceModeMiddleware(g *gin.Engine) *gin.Engine {
	g.Use(func(ctx *gin.Context) {
		mm, err := strconv.ParseBool(os.Getenv("MAINTENANCE_MODE"))
		if err == nil && mm {
			err := errors.New("server is under maintenance")
			log.Println(err.Error())
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
	})
	return g
}

func apiv1Group(g *gin.Engine) *gin.RouterGroup {
	return g.Group(apiPrefix)
}

func registerRoutes(router *gin.Engine) {
	authorized := apiv1Group(router)
	authorized.Use(middlewares.AuthMiddleware)
	admissionHandlers(authorized)
	eventHandlers(authorized)
	ticketHandlers(authorized)
	purchaseHandlers(authorized)
	reconciliationHandlers(authorized)
}

func initLogger() {
	cwd, _ := os.Getwd()
	logDir := path.Join(cwd, "logs")
	os.MkdirAll(logDir, 0o755)
	serverLogs := path.Join(logDir, "server.log")
	apiLogs := path.Join(logDir, "api.log")
	gin.ForceConsoleColor()

	f, _ := os.Create(apiLogs)
	gin.DefaultWriter = io.MultiWriter(f, os.Stdout)
	log.SetOutput(&lumberjack.Logger{
		Filename:   serverLogs,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
}

func corsMiddleware(apiEnv string) gin.HandlerFunc {
	if apiEnv == "local" {
		return cors.Default()
	}
	appHost := os.Getenv("APP_HOST")
	cc := cors.DefaultConfig()
	cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "PATCH", "PUT", "DELETE", "HEAD")
	cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization", "Idempotency-Key")
	cc.AllowOriginFunc = func(origin string) bool {
		if appHost != "" {
			if match, _ := regexp.MatchString(appHost, origin); match {
				return true
			}
		}
		match, _ := regexp.MatchString("app:mobile", origin)
		return match
	}
	cc.AllowCredentials = true
	cc.AllowAllOrigins = false
	return cors.New(cc)
}

func main() {
	apiEnv := config.APIEnv()
	if apiEnv == "local" {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil {
			panic(err)
		}
	}
	initLogger()

	d := boot.InitDb()
	media, err := common.NewMediaStoreFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize media store: %s", err)
	}
	var rd *redis.Client
	if config.RedisEnabled() {
		rd = lib.GetRedisClient()
	}
	svc = newServices(d, rd, media)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot.InitScheduler(svc.reconciliation)
	go boot.InitBroker(ctx, svc.reconciliation)

	router := setupRouter()
	router.Use(corsMiddleware(apiEnv))
	registerValidators()
	router = maintenanceModeMiddleware(router)
	registerRoutes(router)

	srv := &http.Server{
		Addr:    config.APIPort(),
		Handler: router,
	}
	go func() {
		var err error
		if os.Getenv("TLS_ENABLE") == "true" {
			cwd, _ := os.Getwd()
			certpath := path.Join(cwd, "certificates", "localhost.pem")
			keypath := path.Join(cwd, "certificates", "localhost-key.pem")
			err = srv.ListenAndServeTLS(certpath, keypath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %s", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %s\n", err.Error())
	}
	boot.StopScheduler()
}
