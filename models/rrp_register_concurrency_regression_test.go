package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/aeromro/spareparts_backend/config"
	"bitbucket.org/aeromro/spareparts_backend/models"
	"github.com/shopspring/decimal"
)

// Two concurrent submissions of the same bare number must never both pass the
// duplicate check: the chain read runs FOR UPDATE inside the registration
// transaction, so the second submission blocks until the first commits and
// then sees the inserted row.
func TestRegisterRrp_ConcurrentBareNumberKeepsSingleActiveRecord(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "spareparts_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	input := func() *models.NewRrpRecord {
		return &models.NewRrpRecord{
			Number:      "L001",
			FiscalYear:  "2024-2025",
			Date:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			TotalAmount: decimal.NewFromInt(1000),
		}
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := models.RegisterRrp(ctx, input())
			results[i] = err
		}(i)
	}
	wg.Wait()

	// The loser either sees the winner's row (DuplicateInFiscalYear) or is
	// rolled back as a lock-conflict victim; both uphold the invariant.
	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if errors.Is(err, models.ErrDuplicateInFiscalYear) {
			continue
		} else {
			t.Logf("loser rolled back with: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful registration, got %d", succeeded)
	}

	db := config.GetDB()
	var count int64
	err := db.Model(&models.RrpRecord{}).
		Where("prefix = ? AND base_no = ? AND status <> ?",
			models.RrpPrefixLocal, 1, models.ApprovalStatusRejected).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count rrp records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single non-rejected L001 row, found %d", count)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("spareparts-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=spareparts_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
