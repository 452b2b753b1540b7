package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"signCast/internal/auth"
	"signCast/internal/config"
	"signCast/internal/database"
)

func main() {
	var (
		mobileID   = flag.String("mobile-id", "", "设备 ID（注册设备时必填）")
		gname      = flag.String("gname", "", "设备所属组名（注册设备时必填）")
		shopName   = flag.String("shop", "", "门店名（可选）")
		deviceName = flag.String("device-name", "", "设备展示名（可选）")

		mintToken = flag.Bool("mint-token", false, "签发调试用操作员令牌（仅联调环境）")
		subject   = flag.String("subject", "", "令牌 subject（--mint-token 时必填）")
		keyFile   = flag.String("private-key-file", "", "RSA 私钥 PEM 路径（可选，默认读 AUTH_PRIVATE_KEY_FILE）")
		tokenTTL  = flag.Duration("token-ttl", 12*time.Hour, "令牌有效期")

		dbHost = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		ssl    = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	if *mintToken {
		mintDebugToken(*subject, *keyFile, *tokenTTL)
		return
	}

	registerDevice(*mobileID, *gname, *shopName, *deviceName, *dbHost, *dbPort, *dbName, *dbUser, *dbPass, *ssl)
}

func mintDebugToken(subject, keyFile string, ttl time.Duration) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		log.Fatal("missing required flag: --subject")
	}
	if strings.TrimSpace(keyFile) == "" {
		keyFile = os.Getenv("AUTH_PRIVATE_KEY_FILE")
	}
	if strings.TrimSpace(keyFile) == "" {
		log.Fatal("private key file is required (--private-key-file or AUTH_PRIVATE_KEY_FILE)")
	}

	pem, err := os.ReadFile(keyFile)
	if err != nil {
		log.Fatalf("read private key: %v", err)
	}
	token, err := auth.MintOperatorToken(pem, subject, ttl)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	fmt.Println(token)
}

func registerDevice(mobileID, gname, shopName, deviceName, dbHost string, dbPort int, dbName, dbUser, dbPass, ssl string) {
	mobileID = strings.TrimSpace(mobileID)
	if mobileID == "" {
		log.Fatal("missing required flag: --mobile-id")
	}
	gname = strings.TrimSpace(gname)
	if gname == "" {
		log.Fatal("missing required flag: --gname")
	}

	dbCfg, err := loadDatabaseConfig(dbHost, dbPort, dbName, dbUser, dbPass, ssl)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	if err := db.AutoMigrate(&database.Device{}); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	var existing database.Device
	switch err := db.Where("mobile_id = ?", mobileID).First(&existing).Error; {
	case err == nil:
		log.Fatalf("device %q already exists", mobileID)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		log.Fatalf("query device: %v", err)
	}

	key, err := auth.GenerateDeviceKey()
	if err != nil {
		log.Fatalf("generate device key: %v", err)
	}
	hashed, err := auth.HashDeviceKey(key)
	if err != nil {
		log.Fatalf("hash device key: %v", err)
	}

	device := database.Device{
		MobileID:   mobileID,
		Gname:      gname,
		ShopName:   strings.TrimSpace(shopName),
		DeviceName: strings.TrimSpace(deviceName),
		KeyHash:    hashed,
	}
	if err := db.Create(&device).Error; err != nil {
		log.Fatalf("create device: %v", err)
	}

	fmt.Printf("已注册设备：\n")
	fmt.Printf("设备 ID: %s\n", mobileID)
	fmt.Printf("设备密钥: %s\n", key)
	fmt.Printf("提示：请立即写入设备代理配置（该密钥仅显示一次）。\n")
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}
