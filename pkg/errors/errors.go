package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrDuplicate 唯一约束冲突：同一记录已存在（幂等场景视为良性）
var ErrDuplicate = errors.New("记录已存在")
