package risk

import "testing"

func TestCircuitBreakerTripsOnConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(3)

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if err := cb.AllowTrading(); err != nil {
		t.Fatalf("2 次失败不应熔断: %v", err)
	}

	cb.RecordFailure()
	if err := cb.AllowTrading(); err != ErrTradingHalted {
		t.Fatalf("第 3 次失败应熔断, got %v", err)
	}
	if !cb.Halted() {
		t.Error("熔断后 Halted 应为 true")
	}
}

func TestCircuitBreakerSuccessResetsCounter(t *testing.T) {
	cb := NewCircuitBreaker(2)

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	if err := cb.AllowTrading(); err != nil {
		t.Fatalf("成功应清空连续失败计数: %v", err)
	}
}

func TestCircuitBreakerNoAutoRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1)
	cb.RecordFailure()

	if cb.AllowTrading() == nil {
		t.Fatal("应熔断")
	}
	// 后续成功不自动恢复
	cb.RecordSuccess()
	if cb.AllowTrading() == nil {
		t.Fatal("熔断后不应自动恢复")
	}

	cb.Resume()
	if err := cb.AllowTrading(); err != nil {
		t.Fatalf("Resume 后应恢复: %v", err)
	}
	if cb.ConsecutiveFailures() != 0 {
		t.Error("Resume 应清空计数")
	}
}

func TestCircuitBreakerManualHalt(t *testing.T) {
	cb := NewCircuitBreaker(0) // 阈值关闭，仅人工熔断

	cb.RecordFailure()
	cb.RecordFailure()
	if err := cb.AllowTrading(); err != nil {
		t.Fatalf("阈值关闭时失败不应熔断: %v", err)
	}

	cb.Halt()
	if cb.AllowTrading() != ErrTradingHalted {
		t.Error("人工熔断应生效")
	}
}

func TestCircuitBreakerNilSafe(t *testing.T) {
	var cb *CircuitBreaker
	if err := cb.AllowTrading(); err != nil {
		t.Fatalf("nil 熔断器应放行: %v", err)
	}
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.Halt()
	cb.Resume()
	if cb.Halted() || cb.ConsecutiveFailures() != 0 {
		t.Error("nil 熔断器应为零值行为")
	}
}
