package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/journeylab/db-reset-go/app"
	"github.com/journeylab/db-reset-go/data"
)

var (
	configPath     string
	connectionName string
	retention      int
	snapshot       bool
	snapshotDir    string
	useS3          bool
	assumeYes      bool
	verbose        bool
)

// defaultConfigPath returns the default path for .env file
func defaultConfigPath() string {
	xdg := os.Getenv("XDG_CONFIG_HOME")
	base := os.Getenv("HOME")
	if xdg != "" {
		base = xdg
	} else {
		base = filepath.Join(base, ".config")
	}
	return filepath.Join(base, "db-reset", ".env")
}

// resolveConfigPath picks the config path from flag, env, or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("DB_RESET_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath()
}

// setupLogging configures the global zerolog logger. Operational logs go to
// stderr so that stdout stays clean for prompts and the final report.
func setupLogging() {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// ensureConfigFile ensures the config file exists
func ensureConfigFile(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	fmt.Printf("Config not found at %s — let's create one.\n", configPath)
	cfgDir := filepath.Dir(configPath)
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return initConfigInteractive(configPath)
}

// promptString prompts for a string input
func promptString(prompt string, defaultValue string) string {
	fmt.Print(prompt)
	if defaultValue != "" {
		fmt.Printf(" [%s]: ", defaultValue)
	} else {
		fmt.Print(": ")
	}

	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

// promptInt prompts for an integer input
func promptInt(prompt string, defaultValue int) int {
	for {
		input := promptString(prompt, fmt.Sprintf("%d", defaultValue))
		if input == "" {
			return defaultValue
		}
		val, err := strconv.Atoi(input)
		if err == nil {
			return val
		}
		fmt.Println("Invalid input. Please enter a number.")
	}
}

// promptBool prompts for a yes/no input
func promptBool(prompt string, defaultValue bool) bool {
	defaultStr := "n"
	if defaultValue {
		defaultStr = "y"
	}

	for {
		input := strings.ToLower(promptString(prompt, defaultStr))
		if input == "" {
			return defaultValue
		}
		if input == "y" || input == "yes" {
			return true
		}
		if input == "n" || input == "no" {
			return false
		}
		fmt.Println("Please enter 'y' or 'n'.")
	}
}

// initConfigInteractive interactively creates or updates a .env config file
func initConfigInteractive(configPath string) error {
	existing := make(map[string]string)
	if _, err := os.Stat(configPath); err == nil {
		existing, _ = godotenv.Read(configPath)
		if !promptBool("Config exists. Do you want to overwrite it?", false) {
			fmt.Println("Aborted. Existing config left unchanged.")
			return nil
		}
	}

	fmt.Println("Setting up snapshot storage and global configuration...")
	fmt.Println("(Warehouse connections are managed separately with 'add' command)")

	snapshotDriver := promptString("Snapshot driver (local/s3)", existing["SNAPSHOT_DRIVER"])
	if snapshotDriver == "" {
		snapshotDriver = "local"
	}
	snapshotDriver = strings.ToLower(snapshotDriver)

	var snapshotDir, s3Bucket, s3Path, awsAccessKeyID, awsSecretAccessKey string

	if snapshotDriver == "local" {
		snapshotDir = promptString("Local snapshot directory", existing["SNAPSHOT_DIR"])
	} else {
		s3Bucket = promptString("S3 bucket name", existing["S3_BUCKET"])
		s3Path = promptString("S3 base path", existing["S3_PATH"])
		if s3Path == "" {
			s3Path = "snapshots"
		}
		awsAccessKeyID = promptString("AWS Access Key ID", existing["AWS_ACCESS_KEY_ID"])
		fmt.Print("AWS Secret Access Key: ")
		reader := bufio.NewReader(os.Stdin)
		awsSecretAccessKey, _ = reader.ReadString('\n')
		awsSecretAccessKey = strings.TrimSpace(awsSecretAccessKey)
		if awsSecretAccessKey == "" {
			awsSecretAccessKey = existing["AWS_SECRET_ACCESS_KEY"]
		}
	}

	retentionDefault := 5
	if existing["RETENTION_COUNT"] != "" {
		if val, err := strconv.Atoi(existing["RETENTION_COUNT"]); err == nil {
			retentionDefault = val
		}
	}
	retentionCount := promptInt("Retention count (how many snapshots to keep)", retentionDefault)

	// Write .env file
	lines := []string{
		fmt.Sprintf("SNAPSHOT_DRIVER=%s", snapshotDriver),
		fmt.Sprintf("RETENTION_COUNT=%d", retentionCount),
	}

	if snapshotDriver == "local" {
		lines = append(lines, fmt.Sprintf("SNAPSHOT_DIR=%s", snapshotDir))
	} else {
		lines = append(lines,
			fmt.Sprintf("S3_BUCKET=%s", s3Bucket),
			fmt.Sprintf("S3_PATH=%s", s3Path),
			fmt.Sprintf("AWS_ACCESS_KEY_ID=%s", awsAccessKeyID),
			fmt.Sprintf("AWS_SECRET_ACCESS_KEY=%s", awsSecretAccessKey),
		)
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config at %s\n", configPath)
	fmt.Println("Use 'db-reset add' to add warehouse connections.")
	return nil
}

// selectConnection resolves the connection profile to use, prompting when
// the choice is ambiguous.
func selectConnection(connManager *data.ConnectionManager) (string, *data.Connection, error) {
	name := connectionName
	if name == "" {
		connections, err := connManager.ListConnections()
		if err != nil {
			return "", nil, fmt.Errorf("failed to list connections: %w", err)
		}

		if len(connections) == 0 {
			return "", nil, fmt.Errorf("no connections found. Use 'db-reset add' to add a connection")
		} else if len(connections) == 1 {
			name = connections[0]
			fmt.Printf("Using connection: %s\n", name)
		} else {
			fmt.Println("Available connections:")
			for i, conn := range connections {
				fmt.Printf("  %d. %s\n", i+1, conn)
			}
			choice := promptInt("Select connection", 1)
			if choice < 1 || choice > len(connections) {
				return "", nil, fmt.Errorf("invalid selection")
			}
			name = connections[choice-1]
		}
	}

	conn, err := connManager.GetConnection(name)
	if err != nil {
		return "", nil, fmt.Errorf("connection '%s' not found: %w", name, err)
	}
	return name, conn, nil
}

// buildSnapshotGateway assembles the snapshot store from flags, the
// connection profile and the .env file.
func buildSnapshotGateway(conn *data.Connection) (*data.SnapshotGateway, error) {
	driver := ""
	if useS3 {
		driver = "s3"
	} else if snapshotDir != "" {
		driver = "local"
	} else if conn.SnapshotDriver != "" {
		driver = strings.ToLower(conn.SnapshotDriver)
	} else {
		driver = strings.ToLower(os.Getenv("SNAPSHOT_DRIVER"))
	}

	if driver == "s3" {
		s3Bucket := conn.S3Bucket
		if s3Bucket == "" {
			s3Bucket = os.Getenv("S3_BUCKET")
		}
		if s3Bucket == "" {
			return nil, fmt.Errorf("please set s3_bucket in connection or S3_BUCKET in .env")
		}

		s3Path := conn.Path
		if s3Path == "" {
			s3Path = os.Getenv("S3_PATH")
		}
		if s3Path == "" {
			s3Path = "snapshots"
		}

		return data.NewSnapshotGateway("", s3Bucket, s3Path,
			os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"))
	}

	dir := snapshotDir
	if dir == "" {
		dir = conn.Path
	}
	if dir == "" {
		dir = os.Getenv("SNAPSHOT_DIR")
	}
	if dir == "" {
		return nil, fmt.Errorf("please specify --snapshot-dir, set path in connection, or set SNAPSHOT_DIR in .env")
	}

	return data.NewSnapshotGateway(dir, "", "", "", "")
}

// resetCmd handles the reset command
func resetCmd(cmd *cobra.Command, args []string) error {
	dbName := args[0]

	configPath := resolveConfigPath()
	if err := ensureConfigFile(configPath); err != nil {
		return err
	}

	// Load .env file
	if err := godotenv.Load(configPath); err != nil {
		fmt.Printf("Warning: failed to load .env file: %v\n", err)
	}

	connManager, err := data.NewConnectionManager("")
	if err != nil {
		return fmt.Errorf("failed to create connection manager: %w", err)
	}

	_, conn, err := selectConnection(connManager)
	if err != nil {
		return err
	}

	if !assumeYes {
		warning := fmt.Sprintf(
			"This will permanently destroy database '%s' and every object in it, then recreate it empty. Continue?",
			dbName)
		if !promptBool(warning, false) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Determine retention count
	retentionCount := retention
	if retentionCount == 0 {
		if val := os.Getenv("RETENTION_COUNT"); val != "" {
			if parsed, err := strconv.Atoi(val); err == nil {
				retentionCount = parsed
			}
		}
		if retentionCount == 0 {
			retentionCount = 5
		}
	}

	// Create catalog gateway
	catalog := data.NewCatalogGateway(
		conn.Host, conn.Port, conn.User, conn.Password,
		conn.MysqldumpPath,
		conn.SSHHost, conn.SSHPort, conn.SSHUser, conn.SSHKeyPath,
		conn.BastionHost, conn.BastionPort, conn.BastionUser, conn.BastionKeyPath,
	)
	defer catalog.Close()

	// Create snapshot gateway only when a snapshot was requested
	var snapshots app.SnapshotStore
	if snapshot {
		sg, err := buildSnapshotGateway(conn)
		if err != nil {
			return fmt.Errorf("failed to create snapshot gateway: %w", err)
		}
		snapshots = sg
	}

	useCase := app.NewResetUseCase(catalog, snapshots, conn.ProtectedDBs)
	ctx := context.Background()
	if err := useCase.Execute(ctx, dbName, app.ResetOptions{
		Snapshot:       snapshot,
		RetentionCount: retentionCount,
	}); err != nil {
		return err
	}

	// Post-reset report: the database exists and is empty.
	tables, err := catalog.ListTables(ctx, dbName)
	if err != nil {
		fmt.Printf("Database '%s' reset. (verification failed: %v)\n", dbName, err)
		return nil
	}
	fmt.Printf("Database '%s' reset: exists with %d objects.\n", dbName, len(tables))
	return nil
}

// databasesCmd handles the databases command
func databasesCmd(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath()
	if err := ensureConfigFile(configPath); err != nil {
		return err
	}
	if err := godotenv.Load(configPath); err != nil {
		fmt.Printf("Warning: failed to load .env file: %v\n", err)
	}

	connManager, err := data.NewConnectionManager("")
	if err != nil {
		return fmt.Errorf("failed to create connection manager: %w", err)
	}

	_, conn, err := selectConnection(connManager)
	if err != nil {
		return err
	}

	catalog := data.NewCatalogGateway(
		conn.Host, conn.Port, conn.User, conn.Password,
		conn.MysqldumpPath,
		conn.SSHHost, conn.SSHPort, conn.SSHUser, conn.SSHKeyPath,
		conn.BastionHost, conn.BastionPort, conn.BastionUser, conn.BastionKeyPath,
	)
	defer catalog.Close()

	ctx := context.Background()
	databases, err := catalog.ListDatabases(ctx)
	if err != nil {
		return fmt.Errorf("failed to list databases: %w", err)
	}

	if len(databases) == 0 {
		fmt.Println("No user databases found.")
		return nil
	}
	for _, db := range databases {
		tables, err := catalog.ListTables(ctx, db.Name)
		if err != nil {
			fmt.Printf("  %s\n", db.Name)
			continue
		}
		fmt.Printf("  %s (%d objects)\n", db.Name, len(tables))
	}
	return nil
}

// addCmd handles the add command
func addCmd(cmd *cobra.Command, args []string) error {
	connManager, err := data.NewConnectionManager("")
	if err != nil {
		return fmt.Errorf("failed to create connection manager: %w", err)
	}

	// Get connection name
	name := connectionName
	if name == "" {
		name = promptString("Connection name", "")
		if name == "" {
			return fmt.Errorf("connection name is required")
		}
	}

	// Check if connection exists
	existing, _ := connManager.GetConnection(name)
	if existing != nil {
		if !promptBool(fmt.Sprintf("Connection '%s' already exists. Overwrite?", name), false) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Get connection details
	host := promptString("MySQL host", getHost(existing))
	if host == "" {
		host = "localhost"
	}

	port := promptInt("MySQL port", getPort(existing))
	if port == 0 {
		port = 3306
	}

	user := promptString("MySQL user", getUser(existing))
	if user == "" {
		user = "root"
	}

	fmt.Print("MySQL password: ")
	reader := bufio.NewReader(os.Stdin)
	password, _ := reader.ReadString('\n')
	password = strings.TrimSpace(password)
	if password == "" && existing != nil {
		password = existing.Password
	}

	mysqldumpPath := promptString("mysqldump path (used for pre-reset snapshots)", getMysqldumpPath(existing))
	if mysqldumpPath == "" {
		if path, err := exec.LookPath("mysqldump"); err == nil {
			mysqldumpPath = path
		}
	}

	protectedStr := promptString("Comma-separated list of databases to protect from reset (besides system DBs)", "")
	var protectedDBs []string
	if protectedStr != "" {
		for _, db := range strings.Split(protectedStr, ",") {
			if db = strings.TrimSpace(db); db != "" {
				protectedDBs = append(protectedDBs, db)
			}
		}
	}

	// Snapshot storage settings
	snapshotDriver := promptString("Snapshot driver (local/s3, leave empty to use .env)", getSnapshotDriver(existing))
	snapshotDriver = strings.ToLower(snapshotDriver)

	var path, s3Bucket string
	if snapshotDriver == "local" {
		path = promptString("Snapshot directory path", getPath(existing))
	} else if snapshotDriver == "s3" {
		s3Bucket = promptString("S3 bucket name", getS3Bucket(existing))
		path = promptString("S3 path prefix", getPath(existing))
	}

	// SSH settings
	sshHost := promptString("SSH host (leave empty if not using SSH)", getSSHHost(existing))
	var sshPort int
	var sshUser, sshKeyPath string
	var bastionHost, bastionUser, bastionKeyPath string
	var bastionPort int

	if sshHost != "" {
		sshPort = promptInt("SSH port", 22)
		sshUser = promptString("SSH user", "")
		sshKeyPath = promptString("SSH key path", "")

		bastionHost = promptString("Bastion host (leave empty if not using bastion)", "")
		if bastionHost != "" {
			bastionPort = promptInt("Bastion port", 22)
			bastionUser = promptString("Bastion user", sshUser)
			if bastionUser == "" {
				bastionUser = sshUser
			}
			bastionKeyPath = promptString("Bastion key path", sshKeyPath)
			if bastionKeyPath == "" {
				bastionKeyPath = sshKeyPath
			}
		}
	}

	// Create connection
	newConn := &data.Connection{
		Host:           host,
		Port:           port,
		User:           user,
		Password:       password,
		MysqldumpPath:  mysqldumpPath,
		ProtectedDBs:   protectedDBs,
		SnapshotDriver: snapshotDriver,
		Path:           path,
		S3Bucket:       s3Bucket,
		SSHHost:        sshHost,
		SSHPort:        sshPort,
		SSHUser:        sshUser,
		SSHKeyPath:     sshKeyPath,
		BastionHost:    bastionHost,
		BastionPort:    bastionPort,
		BastionUser:    bastionUser,
		BastionKeyPath: bastionKeyPath,
	}

	if existing != nil {
		if err := connManager.UpdateConnection(name, newConn); err != nil {
			return fmt.Errorf("failed to update connection: %w", err)
		}
		fmt.Printf("Connection '%s' updated successfully.\n", name)
	} else {
		if err := connManager.AddConnection(name, newConn); err != nil {
			return fmt.Errorf("failed to add connection: %w", err)
		}
		fmt.Printf("Connection '%s' added successfully.\n", name)
	}

	return nil
}

func getHost(conn *data.Connection) string {
	if conn == nil {
		return ""
	}
	return conn.Host
}

func getPort(conn *data.Connection) int {
	if conn == nil {
		return 3306
	}
	return conn.Port
}

func getUser(conn *data.Connection) string {
	if conn == nil {
		return ""
	}
	return conn.User
}

func getMysqldumpPath(conn *data.Connection) string {
	if conn == nil {
		return ""
	}
	return conn.MysqldumpPath
}

func getSnapshotDriver(conn *data.Connection) string {
	if conn == nil {
		return ""
	}
	return conn.SnapshotDriver
}

func getPath(conn *data.Connection) string {
	if conn == nil {
		return ""
	}
	return conn.Path
}

func getS3Bucket(conn *data.Connection) string {
	if conn == nil {
		return ""
	}
	return conn.S3Bucket
}

func getSSHHost(conn *data.Connection) string {
	if conn == nil {
		return ""
	}
	return conn.SSHHost
}

// removeCmd handles the remove command
func removeCmd(cmd *cobra.Command, args []string) error {
	connManager, err := data.NewConnectionManager("")
	if err != nil {
		return fmt.Errorf("failed to create connection manager: %w", err)
	}

	name := connectionName
	if name == "" {
		name = promptString("Connection name", "")
		if name == "" {
			return fmt.Errorf("connection name is required")
		}
	}

	if _, err := connManager.GetConnection(name); err != nil {
		return fmt.Errorf("connection '%s' not found", name)
	}

	if !promptBool(fmt.Sprintf("Are you sure you want to remove connection '%s'?", name), false) {
		fmt.Println("Aborted.")
		return nil
	}

	if err := connManager.RemoveConnection(name); err != nil {
		return fmt.Errorf("failed to remove connection: %w", err)
	}

	fmt.Printf("Connection '%s' removed successfully.\n", name)
	return nil
}

// listCmd handles the list command
func listCmd(cmd *cobra.Command, args []string) error {
	connManager, err := data.NewConnectionManager("")
	if err != nil {
		return fmt.Errorf("failed to create connection manager: %w", err)
	}

	connections, err := connManager.ListConnections()
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}

	if len(connections) == 0 {
		fmt.Println("No connections found. Use 'db-reset add' to add a connection.")
		return nil
	}

	fmt.Println("Available connections:")
	for _, connName := range connections {
		conn, err := connManager.GetConnection(connName)
		if err != nil {
			continue
		}

		snapshotInfo := ""
		if conn.SnapshotDriver != "" {
			snapshotInfo = fmt.Sprintf(" [snapshots: %s", conn.SnapshotDriver)
			if conn.Path != "" {
				snapshotInfo += fmt.Sprintf(", path: %s", conn.Path)
			}
			if conn.SnapshotDriver == "s3" && conn.S3Bucket != "" {
				snapshotInfo += fmt.Sprintf(", bucket: %s", conn.S3Bucket)
			}
			snapshotInfo += "]"
		}

		fmt.Printf("  %s: %s@%s:%d%s\n", connName, conn.User, conn.Host, conn.Port, snapshotInfo)
	}

	return nil
}

// initCmd handles the init command
func initCmd(cmd *cobra.Command, args []string) error {
	return initConfigInteractive(resolveConfigPath())
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "db-reset",
		Short: "Database reset tool for data-preparation workflows",
		Long: "A command-line tool that drops a database (with everything in it) and recreates it empty,\n" +
			"so downstream ingestion can start from a clean namespace.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Reset command
	resetCmd := &cobra.Command{
		Use:   "reset <database>",
		Short: "Drop a database if it exists and recreate it empty",
		Args:  cobra.ExactArgs(1),
		RunE:  resetCmd,
	}
	resetCmd.Flags().StringVar(&configPath, "config", "", "Path to the .env file")
	resetCmd.Flags().StringVar(&connectionName, "connection", "", "Name of the connection to use")
	resetCmd.Flags().BoolVar(&snapshot, "snapshot", false, "Take a snapshot of the database before dropping it")
	resetCmd.Flags().StringVar(&snapshotDir, "snapshot-dir", "", "Local directory to store snapshots in")
	resetCmd.Flags().BoolVar(&useS3, "s3", false, "Store snapshots in S3")
	resetCmd.Flags().IntVar(&retention, "retention", 0, "Number of snapshots to retain")
	resetCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")

	// Databases command
	databasesCmd := &cobra.Command{
		Use:   "databases",
		Short: "List user databases on the connected warehouse",
		RunE:  databasesCmd,
	}
	databasesCmd.Flags().StringVar(&configPath, "config", "", "Path to the .env file")
	databasesCmd.Flags().StringVar(&connectionName, "connection", "", "Name of the connection to use")

	// Add command
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new warehouse connection",
		RunE:  addCmd,
	}
	addCmd.Flags().StringVar(&connectionName, "name", "", "Name for this connection")

	// Remove command
	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a warehouse connection",
		RunE:  removeCmd,
	}
	removeCmd.Flags().StringVar(&connectionName, "name", "", "Name of the connection to remove")

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all warehouse connections",
		RunE:  listCmd,
	}

	// Init command
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create/update the config file",
		RunE:  initCmd,
	}
	initCmd.Flags().StringVar(&configPath, "config", "", "Path to the .env file")

	rootCmd.AddCommand(resetCmd, databasesCmd, addCmd, removeCmd, listCmd, initCmd)

	return rootCmd
}
